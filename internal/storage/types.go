package storage

import (
	"time"

	"github.com/cockroachdb/errors"

	"posterbot/internal/content"
	"posterbot/internal/posting"
)

var (
	ErrClosed = errors.New("storage closed")

	// ErrCorruptRecord means a stored row could not be decoded.
	ErrCorruptRecord = errors.New("corrupt storage record")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite" (default): SQLite database at Path
//   - "memory": nothing survives a restart
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API used by the posting core.
type Store interface {
	content.Store
	posting.UserStore
	Close() error
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, errors.Mark(errors.Wrapf(err, "time %q", s), ErrCorruptRecord)
	}
	return t, nil
}
