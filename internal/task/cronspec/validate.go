package cronspec

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
)

// ErrInvalidCronExpression is returned (wrapped) for any expression Validate rejects.
var ErrInvalidCronExpression = errors.New("invalid cron expression")

var (
	fiveFieldParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sixFieldParser  = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
)

// Validate reports whether expr is a 5- or 6-field cron expression.
// The returned error matches ErrInvalidCronExpression.
func Validate(expr string) error {
	_, err := Parse(expr)
	return err
}

// ValidateFields validates a pre-split expression. Fields are joined with single
// spaces before validation; a nil slice is rejected like an empty string.
func ValidateFields(fields []string) error {
	if fields == nil {
		return errors.Wrap(ErrInvalidCronExpression, "no fields")
	}
	return Validate(strings.Join(fields, " "))
}

// Parse validates expr and returns the matching cron Recurrence.
func Parse(expr string) (Recurrence, error) {
	fields := strings.Fields(expr)
	switch len(fields) {
	case 0:
		return Recurrence{}, errors.Wrap(ErrInvalidCronExpression, "empty expression")
	case 5, 6:
	default:
		return Recurrence{}, errors.Wrapf(ErrInvalidCronExpression, "expected 5 or 6 fields, got %d", len(fields))
	}

	var cf CronFields
	if len(fields) == 6 {
		cf.Second, fields = fields[0], fields[1:]
	}
	cf.Minute = fields[0]
	cf.Hour = fields[1]
	cf.DayOfMonth = fields[2]
	cf.Month = fields[3]
	cf.DayOfWeek = normalizeDow(fields[4])

	if _, err := cf.schedule(); err != nil {
		return Recurrence{}, errors.Wrapf(ErrInvalidCronExpression, "%q: %v", strings.TrimSpace(expr), err)
	}
	return Recurrence{kind: KindCron, cron: cf}, nil
}

// normalizeDow rewrites the day-of-week alias 7 (Sunday) to 0 in list items.
// Ranges ending in 7 are left for the parser to reject.
func normalizeDow(f string) string {
	if !strings.Contains(f, "7") {
		return f
	}
	parts := strings.Split(f, ",")
	for i, p := range parts {
		if p == "7" {
			parts[i] = "0"
		}
	}
	return strings.Join(parts, ",")
}
