package transport

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestPermanentSurvivesWrapping(t *testing.T) {
	err := errors.Wrap(Permanent(errors.New("blocked")), "send to 5")
	assert.True(t, IsPermanent(err))
	assert.False(t, IsPermanent(errors.New("timeout")))
	assert.Nil(t, Permanent(nil))
}

func TestRetryAfterHint(t *testing.T) {
	base := errors.New("too many requests")
	err := errors.Wrap(WithRetryAfter(base, 3*time.Second), "send")

	d, ok := RetryAfter(err)
	assert.True(t, ok)
	assert.Equal(t, 3*time.Second, d)
	assert.True(t, errors.Is(err, base))

	_, ok = RetryAfter(base)
	assert.False(t, ok)

	d, _ = RetryAfter(WithRetryAfter(base, -time.Second))
	assert.Zero(t, d)
}
