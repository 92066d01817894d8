package logx

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, b []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(b)), "\n") {
		if line == "" {
			continue
		}
		m := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestZeroAndNop(t *testing.T) {
	var zero Logger
	assert.True(t, zero.IsZero())
	zero.Info("dropped")
	assert.False(t, Nop().IsZero())
	assert.False(t, zero.With(Comp("x")).IsZero())
}

func TestWithAndDomainFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(Comp("posting"), User(42))
	log.Info("delivered", Item("abc"), Job("post_content_job_42"), Err(nil))
	log.Debug("skipped", User(7))

	lines := decodeLines(t, buf.Bytes())
	require.Len(t, lines, 2)
	assert.Equal(t, "posting", lines[0]["comp"])
	assert.EqualValues(t, 42, lines[0]["user"])
	assert.Equal(t, "abc", lines[0]["item"])
	assert.Equal(t, "post_content_job_42", lines[0]["job"])
	assert.NotContains(t, lines[0], "err")
	assert.True(t, strings.HasPrefix(lines[0]["caller"].(string), "logx_test.go:"))
	// per-call fields override fixed ones
	assert.EqualValues(t, 7, lines[1]["user"])
}

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	assert.False(t, log.Enabled(LevelInfo))
	assert.True(t, log.Enabled(LevelError))
	log.Info("hidden")
	log.Warn("shown")
	assert.Len(t, decodeLines(t, buf.Bytes()), 1)

	assert.Equal(t, LevelWarn, ParseLevel(" WARNING "))
	assert.Equal(t, LevelInfo, ParseLevel("loud"))
}

func TestServiceApplyIsLive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "bot.log")
	var console bytes.Buffer

	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}}, WithStdout(&console))
	t.Cleanup(func() { _ = svc.Close() })
	child := log.With(Comp("scheduler"))

	child.Debug("not yet")
	child.Info("first")
	svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	child.Debug("now visible")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := decodeLines(t, b)
	require.Len(t, lines, 2)
	assert.Equal(t, "first", lines[0]["message"])
	assert.Equal(t, "now visible", lines[1]["message"])
	assert.Equal(t, "scheduler", lines[1]["comp"])
	assert.Empty(t, console.String())

	svc.Apply(Config{Level: "info", Console: true})
	child.Info("to console")
	assert.Contains(t, console.String(), "to console")
}

func TestPanicFieldCarriesStack(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug")
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("recovered", Panic(r, 3))
			}
		}()
		panic("boom")
	}()
	lines := decodeLines(t, buf.Bytes())
	require.Len(t, lines, 1)
	assert.Equal(t, "boom", lines[0]["panic"])
	assert.Contains(t, lines[0]["stack"], "TestPanicFieldCarriesStack")
}
