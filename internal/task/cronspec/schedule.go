package cronspec

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrInvalidSchedule marks every error returned by ParseSchedule.
var ErrInvalidSchedule = errors.New("invalid schedule")

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseSchedule parses a user-supplied schedule into a Recurrence.
//
// Supported forms:
//   - Cron: "*/5 * * * *", "*/10 * * * * *"
//   - Interval duration: "55m", "2h30m"
//   - Interval HH:MM: "00:50" (50 minutes), "02:30"
//   - Interval seconds: "60"
//
// Optional prefixes:
//   - "cron:" forces cron parsing
//   - "interval:" or "every:" forces interval parsing
func ParseSchedule(raw string) (Recurrence, error) {
	r, err := parseSchedule(raw)
	if err != nil {
		return Recurrence{}, errors.Mark(err, ErrInvalidSchedule)
	}
	return r, nil
}

func parseSchedule(raw string) (Recurrence, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Recurrence{}, errors.New("schedule required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return Parse(s[len("cron:"):])
	case strings.HasPrefix(low, "interval:"):
		return parseInterval(s[len("interval:"):])
	case strings.HasPrefix(low, "every:"):
		return parseInterval(s[len("every:"):])
	}

	if strings.HasPrefix(s, "@") {
		return Recurrence{}, errors.Newf("cron descriptors like %q are not supported, use 5 or 6 fields", s)
	}
	if strings.ContainsAny(s, " \t\n\r") {
		return Parse(s)
	}
	if r, err := parseInterval(s); err == nil {
		return r, nil
	}
	return Recurrence{}, errors.Newf(
		"invalid schedule %q (use cron like '*/5 * * * *', HH:MM like '02:30', seconds like '60' or duration like '55m')",
		raw,
	)
}

func parseInterval(v string) (Recurrence, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return Recurrence{}, errors.New("interval required")
	}
	if reHHMM.MatchString(v) {
		d, err := parseHHMMDuration(v)
		if err != nil {
			return Recurrence{}, err
		}
		return Every(d)
	}
	if n, err := strconv.ParseUint(v, 10, 32); err == nil {
		return EverySeconds(uint32(n))
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return Recurrence{}, errors.Newf("invalid interval %q (use HH:MM, seconds or Go duration like '55m')", v)
	}
	return Every(d)
}

func parseHHMMDuration(v string) (time.Duration, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, errors.Newf("invalid HH:MM %q", v)
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if mm > 59 {
		return 0, errors.Newf("invalid minutes in %q", v)
	}
	d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	if d <= 0 {
		return 0, errors.New("interval must be > 0")
	}
	return d, nil
}
