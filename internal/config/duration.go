package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// ParseDurationField parses an optional duration setting; "" is 0.
func ParseDurationField(key, raw string) (time.Duration, error) {
	return ParseDurationOrDefault(key, raw, 0)
}

// ParseDurationOrDefault is ParseDurationField with def standing in for "" and 0.
func ParseDurationOrDefault(key, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errors.WithHint(errors.Wrapf(err, "%s: invalid duration %q", key, raw), `use a Go duration like "30s" or "2m"`)
	}
	if d < 0 {
		return 0, errors.Newf("%s: duration must be >= 0", key)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
