package notifier

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	kit "posterbot/internal/transport"
	logx "posterbot/pkg/logx"
)

var ErrEmptyText = errors.New("empty message text")

type Config struct {
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.RatePerSec <= 0 {
		c.RatePerSec = 20
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 15 * time.Second
	}
	return c
}

// Courier is safe for concurrent use.
type Courier struct {
	adapter kit.Adapter
	log     logx.Logger

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger) *Courier {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Courier{adapter: adapter, log: log.With(logx.Comp("notifier"))}
	c.Apply(cfg)
	return c
}

// Apply swaps the limits. Sends already waiting keep the old limiter.
func (c *Courier) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.limiter != nil && c.cfg.RatePerSec == cfg.RatePerSec {
		c.cfg = cfg
		return
	}
	c.cfg = cfg
	// burst = rate, so short spikes don't block too hard.
	c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (c *Courier) snapshot() (Config, *rate.Limiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg, c.limiter
}

// Deliver posts an HTML payload to a destination chat. It is tried once.
func (c *Courier) Deliver(ctx context.Context, destination int64, payload string) error {
	if strings.TrimSpace(payload) == "" {
		return ErrEmptyText
	}
	cfg, lim := c.snapshot()
	return c.send(ctx, cfg, lim, kit.ChatTarget{ChatID: destination}, payload, &kit.SendOptions{ParseMode: kit.ParseHTML})
}

// Notify sends a plain-text notice to a user's private chat, retrying with backoff.
func (c *Courier) Notify(ctx context.Context, userID int64, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	cfg, lim := c.snapshot()
	to := kit.ChatTarget{ChatID: userID}
	opt := &kit.SendOptions{DisablePreview: true}

	var err error
	for attempt := 1; attempt <= 1+cfg.RetryMax; attempt++ {
		if err = c.send(ctx, cfg, lim, to, text, opt); err == nil {
			return nil
		}
		if ctx.Err() != nil || attempt > cfg.RetryMax || kit.IsPermanent(err) {
			break
		}
		c.log.Debug("notice send failed", logx.User(userID), logx.Int("attempt", attempt), logx.Err(err))

		wait := retryDelay(cfg, attempt)
		if hint, ok := kit.RetryAfter(err); ok {
			wait = max(wait, hint)
		}
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return errors.CombineErrors(err, ctx.Err())
		}
	}
	return err
}

func (c *Courier) send(ctx context.Context, cfg Config, lim *rate.Limiter, to kit.ChatTarget, text string, opt *kit.SendOptions) error {
	if err := lim.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limit wait")
	}
	cctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	defer cancel()
	_, err := c.adapter.SendText(cctx, to, text, opt)
	return err
}

// retryDelay is the wait before attempt+1: base*2^(attempt-1) with 0.7..1.3 jitter, capped.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	return min(d, cfg.RetryMaxDelay)
}
