package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"posterbot/internal/task/cronspec"
)

var ErrInvalidConfig = errors.New("invalid config")

// Validate checks everything that can be checked without side effects.
// All problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.Wrap(ErrInvalidConfig, "config is nil")
	}
	var problems []string
	add := func(err error) {
		if err != nil {
			problems = append(problems, err.Error())
		}
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		problems = append(problems, "telegram.token is required")
	}
	_, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	add(err)
	_, err = ParseDurationField("telegram.command_timeout", cfg.Telegram.CommandTimeout)
	add(err)

	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			problems = append(problems, "scheduler.timezone: unknown zone "+tz)
		}
	}
	_, err = ParseDurationField("scheduler.startup_spread", cfg.Scheduler.StartupSpread)
	add(err)
	_, err = ParseDurationField("scheduler.job_timeout", cfg.Scheduler.JobTimeout)
	add(err)

	te := cfg.TaskEngine
	if te.Workers < 0 || te.QueueSize < 0 || te.HistorySize < 0 {
		problems = append(problems, "task_engine: workers, queue_size and history_size must be >= 0")
	}
	_, err = ParseDurationField("task_engine.default_timeout", te.DefaultTimeout)
	add(err)
	_, err = ParseDurationField("task_engine.max_queue_delay", te.MaxQueueDelay)
	add(err)

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "sqlite", "sqlite3", "memory", "mem":
	default:
		problems = append(problems, "storage.driver: unknown driver "+cfg.Storage.Driver)
	}
	_, err = ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	add(err)

	n := cfg.Notifier
	if n.RatePerSec < 0 || n.RetryMax < 0 {
		problems = append(problems, "notifier: rate_per_sec and retry_max must be >= 0")
	}
	_, err = ParseDurationField("notifier.retry_base", n.RetryBase)
	add(err)
	_, err = ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay)
	add(err)
	_, err = ParseDurationField("notifier.send_timeout", n.SendTimeout)
	add(err)

	if _, err := cfg.Posting.Recurrence(); err != nil {
		problems = append(problems, "posting.default_schedule: "+err.Error())
	}

	if len(problems) > 0 {
		return errors.Wrap(ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Recurrence parses DefaultSchedule. Empty means no default.
func (p PostingConfig) Recurrence() (cronspec.Recurrence, error) {
	if strings.TrimSpace(p.DefaultSchedule) == "" {
		return cronspec.Recurrence{}, nil
	}
	return cronspec.ParseSchedule(p.DefaultSchedule)
}
