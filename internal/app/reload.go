package app

import (
	"strings"

	"posterbot/internal/config"
	logx "posterbot/pkg/logx"
)

// applyConfig pushes a committed config into the running components.
// Sections that are wired at construction (telegram, storage, task_engine) only
// take effect after a restart.
func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	changed := logx.String("changed", strings.Join(sections, ","))
	a.log.Debug("config change summary", append([]logx.Field{changed}, attrs...)...)

	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.String("sections", strings.Join(restart, ",")))
	}

	// Logging first so the rest of the reload is logged at the new level.
	a.logs.Apply(mapLogConfig(next))

	if sc, err := mapSchedulerConfig(next); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		a.sched.Apply(sc)
		a.bot.SetLocation(location(sc.Timezone))
	}

	if nc, err := mapNotifierConfig(next); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.courier.Apply(nc)
	}

	if defs, err := mapPostingDefaults(next); err != nil {
		a.log.Warn("invalid posting defaults; keeping previous", logx.Err(err))
	} else {
		a.defaults.Store(&defs)
	}

	a.bot.SetName(next.Telegram.BotName)

	a.log.Info("config reloaded", append([]logx.Field{changed}, attrs...)...)
}
