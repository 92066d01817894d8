package cronspec

import (
	"math"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
)

type Kind uint8

const (
	KindNone Kind = iota
	KindInterval
	KindCron
)

func (k Kind) String() string {
	switch k {
	case KindInterval:
		return "interval"
	case KindCron:
		return "cron"
	default:
		return "none"
	}
}

// CronFields holds the raw fields of a cron expression.
// Second is empty for the 5-field form.
type CronFields struct {
	Second     string
	Minute     string
	Hour       string
	DayOfMonth string
	Month      string
	DayOfWeek  string
}

// Expr renders the fields back into an expression with the original field count.
func (f CronFields) Expr() string {
	parts := []string{f.Minute, f.Hour, f.DayOfMonth, f.Month, f.DayOfWeek}
	if f.Second != "" {
		parts = append([]string{f.Second}, parts...)
	}
	return strings.Join(parts, " ")
}

// EffectiveSecond is the seconds field the schedule runs with ("0" for 5-field expressions).
func (f CronFields) EffectiveSecond() string {
	if f.Second == "" {
		return "0"
	}
	return f.Second
}

func (f CronFields) schedule() (cron.Schedule, error) {
	if f.Second == "" {
		return fiveFieldParser.Parse(f.Expr())
	}
	return sixFieldParser.Parse(f.Expr())
}

// Recurrence is an immutable posting recurrence. The zero value means "unset".
type Recurrence struct {
	kind  Kind
	every time.Duration
	cron  CronFields
}

// Every builds an interval recurrence. d is truncated to whole seconds and must be at least 1s.
func Every(d time.Duration) (Recurrence, error) {
	d = d.Truncate(time.Second)
	if d < time.Second {
		return Recurrence{}, errors.Wrap(ErrInvalidSchedule, "interval must be at least 1s")
	}
	if d/time.Second > math.MaxUint32 {
		return Recurrence{}, errors.Wrap(ErrInvalidSchedule, "interval too large")
	}
	return Recurrence{kind: KindInterval, every: d}, nil
}

// EverySeconds builds an interval recurrence from a whole number of seconds.
func EverySeconds(seconds uint32) (Recurrence, error) {
	return Every(time.Duration(seconds) * time.Second)
}

func (r Recurrence) Kind() Kind              { return r.kind }
func (r Recurrence) IsZero() bool            { return r.kind == KindNone }
func (r Recurrence) Interval() time.Duration { return r.every }
func (r Recurrence) Fields() CronFields      { return r.cron }

// Seconds returns the interval length in seconds (0 for cron recurrences).
func (r Recurrence) Seconds() uint32 {
	if r.kind != KindInterval {
		return 0
	}
	return uint32(r.every / time.Second)
}

// Equal reports whether two recurrences describe the same schedule text.
func (r Recurrence) Equal(o Recurrence) bool {
	return r.kind == o.kind && r.every == o.every && r.cron == o.cron
}

// String is the human form used in chat replies and logs.
func (r Recurrence) String() string {
	switch r.kind {
	case KindInterval:
		return "every " + r.every.String()
	case KindCron:
		return "cron " + r.cron.Expr()
	default:
		return "unset"
	}
}

// MarshalText encodes the recurrence as "interval:<duration>" or "cron:<expr>".
func (r Recurrence) MarshalText() ([]byte, error) {
	switch r.kind {
	case KindInterval:
		return []byte("interval:" + r.every.String()), nil
	case KindCron:
		return []byte("cron:" + r.cron.Expr()), nil
	default:
		return []byte{}, nil
	}
}

// UnmarshalText decodes the MarshalText form. Empty input yields the zero Recurrence.
func (r *Recurrence) UnmarshalText(b []byte) error {
	if strings.TrimSpace(string(b)) == "" {
		*r = Recurrence{}
		return nil
	}
	v, err := ParseSchedule(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// Schedule returns the robfig schedule driving this recurrence.
// Interval schedules fire exactly Interval() after the reference time.
func (r Recurrence) Schedule() (cron.Schedule, error) {
	switch r.kind {
	case KindInterval:
		return intervalSchedule{every: r.every}, nil
	case KindCron:
		return r.cron.schedule()
	default:
		return nil, errors.Wrap(ErrInvalidSchedule, "recurrence is unset")
	}
}

// Next returns the first fire time strictly after t.
func (r Recurrence) Next(t time.Time) (time.Time, error) {
	s, err := r.Schedule()
	if err != nil {
		return time.Time{}, err
	}
	return s.Next(t), nil
}

// intervalSchedule differs from cron.Every: it never rounds the reference time
// down to the second, so the first fire is never earlier than t+every.
type intervalSchedule struct {
	every time.Duration
}

func (s intervalSchedule) Next(t time.Time) time.Time { return t.Add(s.every) }
