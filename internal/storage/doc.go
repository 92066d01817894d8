// Package storage persists users and their content queues.
//
// Two drivers are available:
//   - "sqlite": a SQLite database file (modernc.org/sqlite, no cgo)
//   - "memory": process-local maps, for tests and dry runs
package storage
