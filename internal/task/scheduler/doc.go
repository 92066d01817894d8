// Package scheduler owns the recurring posting jobs.
//
// It triggers jobs with robfig/cron and hands each firing to the task engine,
// which runs it with overlap protection: a firing that comes due while the
// previous one of the same job is still queued or running is skipped.
package scheduler
