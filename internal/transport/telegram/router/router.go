package router

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	rtsup "posterbot/internal/runtime/supervisor"
	kit "posterbot/internal/transport"
	logx "posterbot/pkg/logx"
)

const (
	MsgUnknownCommand = "Unknown command. Try /help"
	MsgBusy           = "Busy, try again in a moment."
)

type Command struct {
	// Name is the command word without the slash, e.g. "start_autopost".
	Name        string
	Aliases     []string
	Description string
	Usage       string
	// Hidden commands are routed but left out of the menu and help.
	Hidden  bool
	Timeout time.Duration // overrides Config.DefaultTimeout
	Handle  HandlerFunc
}

type Config struct {
	Workers        int
	QueueSize      int
	DefaultTimeout time.Duration
}

// table is an immutable command set; SetCommands swaps in a new one.
type table struct {
	cmds     []Command
	index    map[string]*Command
	fallback HandlerFunc
}

func (t *table) lookup(word string) (*Command, bool) {
	c, ok := t.index[word]
	return c, ok
}

// Router maps chat messages to command handlers and runs them on a bounded worker pool.
type Router struct {
	cfg     Config
	log     logx.Logger
	adapter kit.Adapter

	tab atomic.Pointer[table]

	mu   sync.RWMutex
	jobs chan func() // nil while not dispatching
}

func New(cfg Config, log logx.Logger, adapter kit.Adapter) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	r := &Router{cfg: cfg, log: log, adapter: adapter}
	r.tab.Store(&table{index: map[string]*Command{}})
	return r
}

// SetCommands replaces the command table and publishes the menu when the adapter supports it.
// Commands without a name or handler are ignored; an alias never shadows a name.
func (r *Router) SetCommands(ctx context.Context, cmds []Command) {
	next := &table{index: make(map[string]*Command, len(cmds))}
	for _, c := range cmds {
		if c.Name = normalizeName(c.Name); c.Name != "" && c.Handle != nil {
			next.cmds = append(next.cmds, c)
		}
	}
	for i := range next.cmds {
		next.index[next.cmds[i].Name] = &next.cmds[i]
	}
	for i := range next.cmds {
		for _, a := range next.cmds[i].Aliases {
			if a = normalizeName(a); a != "" {
				if _, taken := next.index[a]; !taken {
					next.index[a] = &next.cmds[i]
				}
			}
		}
	}
	r.swap(func(t *table) { t.cmds, t.index = next.cmds, next.index })

	if up, ok := r.adapter.(kit.CommandMenuUpdater); ok {
		menu := buildMenu(next.cmds)
		go func() {
			cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(cctx, menu); err != nil {
				r.log.Warn("menu update failed", logx.Err(err))
			}
		}()
	}
}

// SetFallback sets the handler for messages that are not commands.
func (r *Router) SetFallback(h HandlerFunc) {
	r.swap(func(t *table) { t.fallback = h })
}

func (r *Router) swap(edit func(*table)) {
	for {
		old := r.tab.Load()
		cp := *old
		edit(&cp)
		if r.tab.CompareAndSwap(old, &cp) {
			return
		}
	}
}

// Commands returns the visible commands in registration order.
func (r *Router) Commands() []Command {
	var out []Command
	for _, c := range r.tab.Load().cmds {
		if !c.Hidden {
			out = append(out, c)
		}
	}
	return out
}

// DispatchLoop routes updates until ctx is done or updates is closed.
// It owns the worker pool and gives running handlers up to 3s on exit.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	jobs := make(chan func(), r.cfg.QueueSize)
	r.mu.Lock()
	if r.jobs != nil {
		r.mu.Unlock()
		return nil
	}
	r.jobs = jobs
	r.mu.Unlock()

	sup := rtsup.New(ctx,
		rtsup.WithLogger(r.log.With(logx.Comp("telegram.router"))),
		rtsup.WithCancelOnError(false),
	)
	for i := range r.cfg.Workers {
		sup.GoRestart("command.worker."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-jobs:
					if !ok {
						return nil
					}
					job()
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}
	r.log.Info("command dispatcher started", logx.Int("workers", r.cfg.Workers), logx.Int("job_queue_cap", cap(jobs)))

	defer func() {
		r.mu.Lock()
		r.jobs = nil
		close(jobs)
		r.mu.Unlock()

		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = sup.Wait(wctx)
		sup.Cancel()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if up.Kind == kit.UpdateMessage && up.Message != nil {
				r.route(ctx, up)
			}
		}
	}
}

func (r *Router) route(ctx context.Context, up kit.Update) {
	tab := r.tab.Load()
	word, rest, isCmd := parseCommand(up.Message.Text)
	if !isCmd {
		if tab.fallback != nil && strings.TrimSpace(up.Message.Text) != "" {
			r.dispatch(ctx, up, Command{Handle: tab.fallback}, "")
		}
		return
	}
	cmd, ok := tab.lookup(word)
	if !ok {
		r.notice(ctx, up, MsgUnknownCommand)
		return
	}
	r.dispatch(ctx, up, *cmd, rest)
}

func (r *Router) dispatch(ctx context.Context, up kit.Update, cmd Command, argText string) {
	msg := up.Message
	rid := uuid.NewString()[:8]
	req := &Request{
		Update:   up,
		Message:  msg,
		Chat:     msg.Target(),
		FromID:   msg.FromID,
		FromName: msg.FromName,
		Command:  cmd.Name,
		Args:     strings.Fields(argText),
		ArgText:  argText,
		ReqID:    rid,
		Adapter:  r.adapter,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.User(msg.FromID),
			logx.Int64("chat_id", msg.ChatID),
			logx.String("cmd", cmd.Name),
		),
	}
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = r.cfg.DefaultTimeout
	}
	h := Chain(cmd.Handle, Recover(), Logging(), WithTimeout(timeout))
	if !r.submit(func() { _ = h(ctx, req) }) {
		r.notice(ctx, up, MsgBusy)
	}
}

// submit never blocks; false means the pool is full or not running.
func (r *Router) submit(job func()) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.jobs == nil {
		return false
	}
	select {
	case r.jobs <- job:
		return true
	default:
		return false
	}
}

func (r *Router) notice(ctx context.Context, up kit.Update, text string) {
	if _, err := r.adapter.SendText(ctx, up.Message.Target(), text, nil); err != nil {
		r.log.Debug("notice send failed", logx.Err(err))
	}
}
