package config

import (
	"strings"

	logx "posterbot/pkg/logx"
)

// SummarizeConfigChange lists the changed sections and log fields describing the
// new values. Secrets (the bot token) are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)
	trim := strings.TrimSpace

	o, n := oldCfg.Telegram, newCfg.Telegram
	if o.Token != n.Token || o.BotName != n.BotName || trim(o.PollTimeout) != trim(n.PollTimeout) ||
		o.Workers != n.Workers || trim(o.CommandTimeout) != trim(n.CommandTimeout) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", o.Token != n.Token),
			logx.String("telegram.poll_timeout", trim(n.PollTimeout)),
			logx.Int("telegram.workers", n.Workers),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.timezone", trim(newCfg.Scheduler.Timezone)),
			logx.String("scheduler.startup_spread", trim(newCfg.Scheduler.StartupSpread)),
		)
	}

	if oldCfg.TaskEngine != newCfg.TaskEngine {
		te := newCfg.TaskEngine
		changed = append(changed, "task_engine")
		attrs = append(attrs,
			logx.Int("task_engine.workers", te.Workers),
			logx.Int("task_engine.queue_size", te.QueueSize),
			logx.String("task_engine.default_timeout", trim(te.DefaultTimeout)),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.String("storage.path", newCfg.Storage.Path),
		)
	}

	if oldCfg.Notifier != newCfg.Notifier {
		changed = append(changed, "notifier")
		attrs = append(attrs, logx.Int("notifier.rate_per_sec", newCfg.Notifier.RatePerSec))
	}

	if oldCfg.Posting != newCfg.Posting {
		changed = append(changed, "posting")
		attrs = append(attrs,
			logx.Int64("posting.default_destination", newCfg.Posting.DefaultDestination),
			logx.String("posting.default_schedule", trim(newCfg.Posting.DefaultSchedule)),
		)
	}
	return changed, attrs
}

// RestartRequired names changed sections that only take effect on restart.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case "telegram", "storage", "task_engine":
			out = append(out, s)
		}
	}
	return out
}
