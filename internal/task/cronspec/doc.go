// Package cronspec validates cron expressions and models posting recurrences.
//
// A Recurrence is either a fixed interval or a cron expression in the classic
// 5-field form (minute hour dom month dow) or the 6-field form with a leading
// seconds field. 5-field expressions fire at second 0 of every matching minute.
package cronspec
