// Package posting ties users, their content queues and the job scheduler together.
//
// The Orchestrator owns each user's activation state, runs every firing
// (select, deliver, mark, notify) and rebuilds jobs after a restart. All
// mutations for one user are serialized on that user's lock.
package posting
