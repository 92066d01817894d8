package cronspec

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
)

func TestValidateAcceptsFiveAndSixFields(t *testing.T) {
	t.Parallel()
	valid := []string{
		"* * * * *",
		"0 0 * * *",
		"0 10 * * 1",
		"*/5 * * * *",
		"0 0 1 1 *",
		"0 0 1 1 0",
		"0 0 1 1 7",
		"0 0 1 1 MON",
		"  0 10 * * 1  ",
		"*/10 * * * * *",
		"30 0 9 * * 1-5",
	}
	for _, expr := range valid {
		expr := expr
		t.Run(expr, func(t *testing.T) {
			t.Parallel()
			if err := Validate(expr); err != nil {
				t.Fatalf("Validate(%q) error: %v", expr, err)
			}
		})
	}
}

func TestValidateRejects(t *testing.T) {
	t.Parallel()
	invalid := []string{
		"",
		"   ",
		"* * *",
		"60 24 * * *",
		"0 0 32 13 *",
		"not a cron",
		"@hourly",
		"0 0 1 1 6#2",
		"* * * * * * *",
	}
	for _, expr := range invalid {
		expr := expr
		t.Run(expr, func(t *testing.T) {
			t.Parallel()
			err := Validate(expr)
			if err == nil {
				t.Fatalf("Validate(%q) = nil, want error", expr)
			}
			if !errors.Is(err, ErrInvalidCronExpression) {
				t.Fatalf("Validate(%q) error %v does not match ErrInvalidCronExpression", expr, err)
			}
		})
	}
}

func TestValidateFields(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		fields []string
		ok     bool
	}{
		{name: "weekly", fields: []string{"0", "10", "*", "*", "1"}, ok: true},
		{name: "with seconds", fields: []string{"0", "0", "10", "*", "*", "1"}, ok: true},
		{name: "too few", fields: []string{"*", "*", "*"}},
		{name: "out of range", fields: []string{"0", "0", "32", "13", "*"}},
		{name: "empty", fields: []string{}},
		{name: "nil", fields: nil},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateFields(tt.fields)
			if tt.ok && err != nil {
				t.Fatalf("ValidateFields(%v) error: %v", tt.fields, err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidCronExpression) {
				t.Fatalf("ValidateFields(%v) = %v, want ErrInvalidCronExpression", tt.fields, err)
			}
		})
	}
}

func TestParseMapsFields(t *testing.T) {
	t.Parallel()

	r, err := Parse("0 10 * * 1")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if r.Kind() != KindCron {
		t.Fatalf("Kind = %v, want cron", r.Kind())
	}
	want := CronFields{Minute: "0", Hour: "10", DayOfMonth: "*", Month: "*", DayOfWeek: "1"}
	if got := r.Fields(); got != want {
		t.Fatalf("Fields = %+v, want %+v", got, want)
	}
	if got := r.Fields().EffectiveSecond(); got != "0" {
		t.Fatalf("EffectiveSecond = %q, want 0", got)
	}

	r6, err := Parse("15 0 10 * * 1")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if got := r6.Fields().Second; got != "15" {
		t.Fatalf("Second = %q, want 15", got)
	}
	if got := r6.Fields().Minute; got != "0" {
		t.Fatalf("Minute = %q, want 0", got)
	}

	r7, err := Parse("0 0 1 1 7")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if got := r7.Fields().DayOfWeek; got != "0" {
		t.Fatalf("DayOfWeek = %q, want 0 (sunday alias)", got)
	}
}

func TestFiveFieldCronFiresAtSecondZero(t *testing.T) {
	t.Parallel()
	r, err := Parse("*/5 * * * *")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	from := time.Date(2024, 3, 1, 10, 2, 30, 500, time.UTC)
	next, err := r.Next(from)
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	want := time.Date(2024, 3, 1, 10, 5, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("Next = %v, want %v", next, want)
	}
	// Recomputed from the previous fire time.
	next2, _ := r.Next(next)
	if want2 := want.Add(5 * time.Minute); !next2.Equal(want2) {
		t.Fatalf("second Next = %v, want %v", next2, want2)
	}
}

func TestSixFieldCronUsesSeconds(t *testing.T) {
	t.Parallel()
	r, err := Parse("*/10 * * * * *")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	from := time.Date(2024, 3, 1, 10, 0, 3, 0, time.UTC)
	next, _ := r.Next(from)
	if want := time.Date(2024, 3, 1, 10, 0, 10, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("Next = %v, want %v", next, want)
	}
}

func TestIntervalNeverFiresEarly(t *testing.T) {
	t.Parallel()
	r, err := EverySeconds(60)
	if err != nil {
		t.Fatalf("EverySeconds error: %v", err)
	}
	if r.Seconds() != 60 {
		t.Fatalf("Seconds = %d, want 60", r.Seconds())
	}
	from := time.Date(2024, 3, 1, 10, 0, 0, 999_000_000, time.UTC)
	next, _ := r.Next(from)
	if want := from.Add(60 * time.Second); next.Before(want) {
		t.Fatalf("Next = %v, fires before %v", next, want)
	}
}

func TestEveryRejectsSubSecond(t *testing.T) {
	t.Parallel()
	if _, err := Every(500 * time.Millisecond); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("Every(500ms) = %v, want ErrInvalidSchedule", err)
	}
	if _, err := EverySeconds(0); err == nil {
		t.Fatal("EverySeconds(0) = nil, want error")
	}
}

func TestRecurrenceTextForm(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"interval:1m0s", "cron:0 10 * * 1", "cron:*/10 * * * * *"} {
		var r Recurrence
		if err := r.UnmarshalText([]byte(raw)); err != nil {
			t.Fatalf("UnmarshalText(%q) error: %v", raw, err)
		}
		b, err := r.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText error: %v", err)
		}
		if string(b) != raw {
			t.Fatalf("MarshalText = %q, want %q", b, raw)
		}
	}

	var zero Recurrence
	if err := zero.UnmarshalText(nil); err != nil || !zero.IsZero() {
		t.Fatalf("UnmarshalText(nil) = %v, zero=%v", err, zero.IsZero())
	}
}
