package app

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"posterbot/internal/bot"
	"posterbot/internal/config"
	"posterbot/internal/content"
	"posterbot/internal/eventbus"
	"posterbot/internal/notifier"
	"posterbot/internal/posting"
	"posterbot/internal/runtime/supervisor"
	"posterbot/internal/storage"
	"posterbot/internal/task/engine"
	"posterbot/internal/task/scheduler"
	kit "posterbot/internal/transport"
	telegram "posterbot/internal/transport/telegram/adapter"
	"posterbot/internal/transport/telegram/router"
	logx "posterbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   storage.Store
	adapter kit.Adapter

	engine  *engine.Service
	sched   *scheduler.Service
	courier *notifier.Courier
	poster  *posting.Orchestrator
	router  *router.Router
	bot     *bot.Bot

	// defaults is swapped on config reload and read by the orchestrator.
	defaults atomic.Pointer[posting.Defaults]

	updates chan kit.Update
}

// NewApp loads the config and builds every component. Nothing runs until Start.
func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	a := &App{
		cfgm:    cfgm,
		log:     log.With(logx.Comp("app")),
		logs:    logSvc,
		bus:     eventbus.New(),
		updates: make(chan kit.Update, 256),
	}
	if err := a.build(cfg, log); err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config, log logx.Logger) error {
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return err
	}
	st, err := storage.Open(sc, log.With(logx.Comp("storage")))
	if err != nil {
		return err
	}
	a.store = st
	a.log.Info("storage opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	tc, err := mapTelegramConfig(cfg)
	if err != nil {
		return a.closeStore(err)
	}
	ad, err := telegram.New(tc, log.With(logx.Comp("telegram")))
	if err != nil {
		return a.closeStore(err)
	}
	a.adapter = ad

	ec, err := mapTaskEngineConfig(cfg)
	if err != nil {
		return a.closeStore(err)
	}
	a.engine = engine.New(ec, log.With(logx.Comp("taskengine")), a.bus)

	schc, err := mapSchedulerConfig(cfg)
	if err != nil {
		return a.closeStore(err)
	}
	a.sched = scheduler.New(schc, a.engine, log.With(logx.Comp("scheduler")), a.bus)

	nc, err := mapNotifierConfig(cfg)
	if err != nil {
		return a.closeStore(err)
	}
	a.courier = notifier.New(nc, ad, log)

	defs, err := mapPostingDefaults(cfg)
	if err != nil {
		return a.closeStore(err)
	}
	a.defaults.Store(&defs)

	a.poster = posting.New(posting.Deps{
		Users:     st,
		Queue:     content.NewQueue(st),
		Jobs:      a.sched,
		Transport: a.courier,
		Defaults:  func() posting.Defaults { return *a.defaults.Load() },
		Log:       log.With(logx.Comp("posting")),
		Bus:       a.bus,
	})

	rc, err := mapRouterConfig(cfg)
	if err != nil {
		return a.closeStore(err)
	}
	a.router = router.New(rc, log.With(logx.Comp("commands")), ad)
	a.bot = bot.New(a.poster, log, bot.Options{
		Name:     cfg.Telegram.BotName,
		Help:     a.router.HelpHTML,
		Location: location(cfg.Scheduler.Timezone),
	})
	a.router.SetFallback(a.bot.HandleText())
	return nil
}

func (a *App) closeStore(err error) error {
	if a.store != nil {
		err = errors.CombineErrors(err, a.store.Close())
	}
	return err
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.Comp("config")))
	runCtx := a.sup.Context()

	a.engine.Start(runCtx)
	a.sched.Start(runCtx)

	n, err := a.poster.ReplayOnStartup(runCtx)
	if err != nil {
		// Users that failed stay enabled in storage; the next replay or /start_autopost retries them.
		a.log.Warn("startup replay incomplete", logx.Int("scheduled", n), logx.Err(err))
	} else {
		a.log.Info("startup replay done", logx.Int("scheduled", n))
	}

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		a.sup.Cancel()
		return err
	}
	a.router.SetCommands(runCtx, a.bot.Commands())
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	a.logEvents()
	a.watchConfig()

	a.log.Info("app started")
	return nil
}

// logEvents mirrors bus events into debug logs.
func (a *App) logEvents() {
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer func() {
			unsub()
			if n := a.bus.Dropped(); n > 0 {
				a.log.Debug("bus events dropped by slow subscribers", logx.Uint64("count", n))
			}
		}()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				if !a.log.Enabled(logx.LevelDebug) {
					continue
				}
				a.log.Debug("event", logx.String("type", string(e.Type)), logx.Time("time", e.Time), logx.Any("data", e.Data))
			}
		}
	})
}

func (a *App) watchConfig() {
	a.sup.Go0("config.reload", func(c context.Context) {
		last := a.cfgm.Get()
		// The subscription holds only the newest reload, so bursts coalesce.
		for next := range a.cfgm.Subscribe(c) {
			a.applyConfig(last, next)
			last = next
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
}

// Stop shuts components down in reverse dependency order. Each step is bounded
// so one stuck component cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		err := a.closeStore(nil)
		_ = a.logs.Close()
		return err
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context first so background loops start unwinding immediately.
	a.sup.Cancel()

	var errs error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := boundedContext(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- errors.Newf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				errs = errors.CombineErrors(errs, errors.Wrapf(err, "stop %s", name))
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("taskengine", 3*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	_ = a.logs.Close()
	return errs
}

// boundedContext derives a context that ends at max or the parent's deadline,
// whichever comes first.
func boundedContext(parent context.Context, max time.Duration) (context.Context, context.CancelFunc) {
	if dl, ok := parent.Deadline(); ok && time.Until(dl) < max {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, max)
}
