package transport

import (
	"time"

	"github.com/cockroachdb/errors"
)

// ErrPermanent marks send failures a retry cannot fix, such as a bot blocked by the user.
var ErrPermanent = errors.New("permanent delivery failure")

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, ErrPermanent)
}

func IsPermanent(err error) bool { return errors.Is(err, ErrPermanent) }

// WithRetryAfter attaches the wait the platform asked for before the next attempt.
func WithRetryAfter(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	return &retryAfterError{cause: err, after: max(after, 0)}
}

// RetryAfter returns the hint attached by WithRetryAfter, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var ra *retryAfterError
	if errors.As(err, &ra) {
		return ra.after, true
	}
	return 0, false
}

type retryAfterError struct {
	cause error
	after time.Duration
}

func (e *retryAfterError) Error() string { return e.cause.Error() }
func (e *retryAfterError) Unwrap() error { return e.cause }
