package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posterbot/internal/content"
	"posterbot/internal/posting"
	"posterbot/internal/storage"
	"posterbot/internal/task/scheduler"
	kit "posterbot/internal/transport"
	"posterbot/internal/transport/telegram/router"
	logx "posterbot/pkg/logx"
)

type chatLog struct {
	mu    sync.Mutex
	texts []string
}

func (c *chatLog) Start(context.Context, chan<- kit.Update) error { return nil }
func (c *chatLog) Stop(context.Context) error                     { return nil }
func (c *chatLog) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return kit.MessageRef{}, nil
}

func (c *chatLog) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.texts) == 0 {
		return ""
	}
	return c.texts[len(c.texts)-1]
}

type nopTransport struct{}

func (nopTransport) Deliver(context.Context, int64, string) error { return nil }
func (nopTransport) Notify(context.Context, int64, string) error  { return nil }

type harness struct {
	bot  *Bot
	chat *chatLog
	jobs *scheduler.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := storage.NewMemory()
	t.Cleanup(func() { _ = store.Close() })
	// Started so Status reports next fire times; nothing here fires during the test.
	jobs := scheduler.New(scheduler.Config{Timezone: "UTC"}, nil, logx.Nop(), nil)
	jobs.Start(context.Background())
	t.Cleanup(func() { jobs.Stop(context.Background()) })
	o := posting.New(posting.Deps{
		Users:     store,
		Queue:     content.NewQueue(store),
		Jobs:      jobs,
		Transport: nopTransport{},
	})
	return &harness{
		bot:  New(o, logx.Nop(), Options{Name: "Poster", Help: func() string { return "<code>/start</code>" }, Location: time.UTC}),
		chat: &chatLog{},
		jobs: jobs,
	}
}

func (h *harness) run(t *testing.T, cmd string, argText string) string {
	t.Helper()
	return h.send(t, cmd, &kit.Message{ChatID: 42, FromID: 42, Text: argText})
}

// send delivers msg as if the router had matched cmd ("" for plain text).
func (h *harness) send(t *testing.T, cmd string, msg *kit.Message) string {
	t.Helper()
	argText := msg.Text
	var handle router.HandlerFunc
	for _, c := range h.bot.Commands() {
		if c.Name == cmd {
			handle = c.Handle
		}
	}
	if cmd == "" {
		handle = h.bot.HandleText()
	}
	require.NotNil(t, handle, cmd)
	req := &router.Request{
		Message: msg,
		Chat:    kit.ChatTarget{ChatID: 42},
		FromID:  42,
		Command: cmd,
		Args:    strings.Fields(argText),
		ArgText: argText,
		Adapter: h.chat,
		Logger:  logx.Nop(),
	}
	_ = handle(context.Background(), req)
	return h.chat.last()
}

func TestStartAndHelp(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	assert.Equal(t, "Hello! Welcome to Poster!", h.run(t, "start", ""))

	help := h.run(t, "help", "")
	assert.True(t, strings.HasPrefix(help, "This is Poster. Use /start to begin."))
	assert.Contains(t, help, "<code>/start</code>")
}

func TestAutopostFlow(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	reply := h.run(t, "start_autopost", "")
	assert.Contains(t, reply, "not configured")
	assert.Contains(t, reply, "/set_channel")
	assert.False(t, h.jobs.Has(scheduler.JobID(42)))

	assert.Contains(t, h.run(t, "set_channel", "-1001"), "Channel set to -1001")
	assert.Contains(t, h.run(t, "set_channel", "abc"), "not a chat id")
	assert.Contains(t, h.run(t, "set_schedule", "every tuesday"), "Could not use that schedule")
	assert.Contains(t, h.run(t, "set_schedule", "0 10 * * 1"), "Schedule set: cron 0 10 * * 1")

	reply = h.run(t, "start_autopost", "")
	assert.True(t, strings.HasPrefix(reply, MsgAutopostEnabled))
	assert.Contains(t, reply, "Next post: Mon")
	assert.True(t, h.jobs.Has(scheduler.JobID(42)))

	status := h.run(t, "status", "")
	assert.Contains(t, status, "<b>Auto-posting:</b> on")
	assert.Contains(t, status, "<code>-1001</code>")

	assert.Equal(t, MsgAutopostDisabled, h.run(t, "stop_autopost", ""))
	assert.False(t, h.jobs.Has(scheduler.JobID(42)))
}

func TestTextIsQueuedWithReadiness(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	reply := h.send(t, "", &kit.Message{ChatID: 42, FromID: 42, Text: "#Finished big news", HTML: "#Finished <b>big</b> news"})
	assert.Equal(t, "Saved to queue (finished). Currently in queue: 1\n\n<b>Preview:</b>\n<b>big</b> news", reply)

	reply = h.run(t, "", "just an idea")
	assert.Contains(t, reply, "Saved to queue (draft). Currently in queue: 2")

	assert.Contains(t, h.run(t, "", "#unpolished"), "Nothing to queue")

	list := h.run(t, "queue", "")
	assert.Contains(t, list, "<b>Pending posts:</b> 2")
	assert.Contains(t, list, "1. [finished] big news")
	assert.Contains(t, list, "2. [draft] just an idea")
}

func TestPlainTextIsQueuedEscaped(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	reply := h.run(t, "", "#finished a < b & c")
	assert.True(t, strings.HasSuffix(reply, "<b>Preview:</b>\na &lt; b &amp; c"), reply)

	pending, err := h.bot.poster.Pending(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "a &lt; b &amp; c", pending[0].Payload)
	assert.Equal(t, content.Finished, pending[0].Readiness)
}

func TestReadinessAndPayload(t *testing.T) {
	tests := []struct {
		text, html string
		want       content.Readiness
		body       string
	}{
		{"#finished hello", "", content.Finished, "hello"},
		{"  #UNPOLISHED\nline two", "", content.Unpolished, "line two"},
		{"#draft", "", content.Draft, ""},
		{"#finishedness hello", "", content.Draft, "#finishedness hello"},
		{"hello #finished", "", content.Draft, "hello #finished"},
		{"", "", content.Draft, ""},
		{"#finished Tom & Jerry", "", content.Finished, "Tom &amp; Jerry"},
		{"#finished text", "<b>#finished</b> text", content.Finished, "text"},
		{"#finished big news", "<i>#finished big</i> news", content.Finished, "<i> big</i> news"},
		{"#draft\tnotes", "", content.Draft, "notes"},
	}
	for _, tt := range tests {
		r, body := readinessAndPayload(&kit.Message{Text: tt.text, HTML: tt.html})
		if r != tt.want || body != tt.body {
			t.Fatalf("readinessAndPayload(%q, %q) = (%q, %q), want (%q, %q)", tt.text, tt.html, r, body, tt.want, tt.body)
		}
	}
}

func TestRenderQueueLimitsAndPreview(t *testing.T) {
	items := make([]content.Item, 3)
	for i := range items {
		items[i] = content.Item{Readiness: content.Unpolished, Payload: "<i>a &amp; b</i>\n" + strings.Repeat("x", 80)}
	}
	out := renderQueue(items, 2)
	if !strings.Contains(out, "... and 1 more") {
		t.Fatalf("missing overflow line: %q", out)
	}
	if !strings.Contains(out, "1. [unpolished] a &amp; b xxx") {
		t.Fatalf("preview not flattened: %q", out)
	}
	if !strings.Contains(out, "…") {
		t.Fatalf("preview not truncated: %q", out)
	}
	if renderQueue(nil, 2) != "Queue is empty." {
		t.Fatal("empty queue text")
	}
}
