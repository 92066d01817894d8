// Package content holds each user's queue of items waiting to be posted.
//
// Items carry a readiness level. Selection prefers finished items over
// unpolished ones, never picks drafts, and breaks ties by age.
package content
