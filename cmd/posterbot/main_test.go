package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posterbot/internal/task/cronspec"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCronCheck(t *testing.T) {
	out, err := execute(t, "cron", "check", "-n", "3", "--tz", "UTC", "0 10 * * 1")
	require.NoError(t, err)
	assert.Contains(t, out, "ok: cron 0 10 * * 1")
	assert.Equal(t, 3, strings.Count(out, "Mon, "))
}

func TestCronCheckSeparateFields(t *testing.T) {
	out, err := execute(t, "cron", "check", "-n", "1", "0", "10", "*", "*", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "ok: cron 0 10 * * 1")
}

func TestCronCheckRejectsBadExpression(t *testing.T) {
	_, err := execute(t, "cron", "check", "0 25 * * *")
	require.Error(t, err)
	assert.True(t, errors.Is(err, cronspec.ErrInvalidCronExpression))
}

func TestScheduleCheck(t *testing.T) {
	out, err := execute(t, "schedule", "check", "-n", "2", "90m")
	require.NoError(t, err)
	assert.Contains(t, out, "ok: every 1h30m0s")
	assert.Equal(t, 3, strings.Count(out, "\n"))
}
