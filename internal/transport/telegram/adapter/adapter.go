// Package adapter connects the transport interfaces to the Telegram Bot API via telebot.
package adapter

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	rtsup "posterbot/internal/runtime/supervisor"
	kit "posterbot/internal/transport"
	logx "posterbot/pkg/logx"
)

// Config is the telegram section of the app config.
type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	log logx.Logger
	bot *tele.Bot

	// inbox is the consumer channel while running; nil drops updates.
	inbox   atomic.Pointer[chan<- kit.Update]
	dropped atomic.Uint64
	dropLog rate.Sometimes

	mu  sync.Mutex
	sup *rtsup.Supervisor // non-nil while running

	menu menuState
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.WithHint(errors.New("telegram token is empty"), "set telegram.token in the config file")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout},
	})
	if err != nil {
		return nil, errors.Wrap(err, "telegram bot")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{log: log, bot: b, dropLog: rate.Sometimes{Interval: 5 * time.Second}}
	b.Handle(tele.OnText, a.onText)
	return a, nil
}

func (a *Adapter) onText(c tele.Context) error {
	m := c.Message()
	if m == nil || m.Sender == nil || m.Chat == nil {
		return nil
	}
	a.push(kit.Update{Kind: kit.UpdateMessage, Message: toMessage(m)})
	return nil
}

// push never blocks the poll loop; a slow consumer loses updates.
func (a *Adapter) push(up kit.Update) {
	p := a.inbox.Load()
	if p == nil {
		return
	}
	select {
	case *p <- up:
		return
	default:
	}
	a.dropped.Add(1)
	a.dropLog.Do(func() {
		a.log.Warn("incoming updates dropped (channel full)",
			logx.Uint64("count", a.dropped.Swap(0)), logx.Int("chan_cap", cap(*p)))
	})
}

func toMessage(m *tele.Message) *kit.Message {
	from := m.Sender
	name := strings.TrimSpace(from.FirstName + " " + from.LastName)
	if name == "" {
		name = from.Username
	}
	return &kit.Message{
		ID:           m.ID,
		ChatID:       m.Chat.ID,
		ThreadID:     m.ThreadID,
		FromID:       from.ID,
		FromUsername: from.Username,
		FromName:     name,
		Text:         m.Text,
		HTML:         entitiesToHTML(m.Text, m.Entities),
		IsGroup:      m.Chat.Type != tele.ChatPrivate,
	}
}

// Start begins long polling and forwards text messages to out.
func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sup != nil {
		return nil
	}
	a.inbox.Store(&out)
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log.With(logx.Comp("telegram.adapter"))),
		rtsup.WithCancelOnError(false),
	)

	// bot.Start blocks until bot.Stop, which the watcher below triggers.
	a.sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})
	a.sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		if c.Err() != nil {
			a.log.Info("polling stopped")
			return nil
		}
		return errors.New("poller exited")
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithPublishFirstError(true),
	)
	return nil
}

// Stop waits at most two seconds (or ctx) for the long poll to return.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	sup := a.sup
	a.sup = nil
	a.inbox.Store(nil)
	a.mu.Unlock()
	if sup == nil {
		return nil
	}

	a.log.Info("stopping")
	sup.Cancel()
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err := sup.Wait(wctx)
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		a.log.Warn("telegram stop timed out", logx.Err(err))
	default:
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	if n := a.dropped.Swap(0); n > 0 {
		a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n))
	}
	return nil
}
