package config

// Config is the on-disk configuration. YAML is the primary format; a .json file is read as JSON.
//
// All durations are Go duration strings ("500ms", "10s", "1m"); "" means default.
type Config struct {
	Telegram   TelegramConfig   `json:"telegram" yaml:"telegram"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	Scheduler  SchedulerConfig  `json:"scheduler" yaml:"scheduler"`
	TaskEngine TaskEngineConfig `json:"task_engine" yaml:"task_engine"`
	Storage    StorageConfig    `json:"storage" yaml:"storage"`
	Notifier   NotifierConfig   `json:"notifier" yaml:"notifier"`
	Posting    PostingConfig    `json:"posting" yaml:"posting"`
}

type TelegramConfig struct {
	Token string `json:"token" yaml:"token"`
	// BotName is used in the /start greeting and /help.
	BotName     string `json:"bot_name,omitempty" yaml:"bot_name,omitempty"`
	PollTimeout string `json:"poll_timeout,omitempty" yaml:"poll_timeout,omitempty"`
	// Workers bounds concurrent command handlers. Default 4.
	Workers        int    `json:"workers,omitempty" yaml:"workers,omitempty"`
	CommandTimeout string `json:"command_timeout,omitempty" yaml:"command_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level" yaml:"level"`
	Console bool        `json:"console" yaml:"console"`
	File    LoggingFile `json:"file" yaml:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

// SchedulerConfig controls when jobs fire.
type SchedulerConfig struct {
	// Timezone cron expressions are evaluated in. Default: local time.
	Timezone string `json:"timezone,omitempty" yaml:"timezone,omitempty"`
	// StartupSpread staggers the first firing of jobs registered at startup.
	StartupSpread string `json:"startup_spread,omitempty" yaml:"startup_spread,omitempty"`
	// JobTimeout bounds a single firing. Default: task_engine.default_timeout.
	JobTimeout string `json:"job_timeout,omitempty" yaml:"job_timeout,omitempty"`
}

// TaskEngineConfig controls how firings execute.
//
// Defaults: workers 4, queue_size 256, default_timeout 2m, max_queue_delay 0 (off),
// history_size 200.
type TaskEngineConfig struct {
	Workers        int    `json:"workers,omitempty" yaml:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty" yaml:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty" yaml:"default_timeout,omitempty"`
	MaxQueueDelay  string `json:"max_queue_delay,omitempty" yaml:"max_queue_delay,omitempty"`
	HistorySize    int    `json:"history_size,omitempty" yaml:"history_size,omitempty"`
}

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./posterbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty" yaml:"driver,omitempty"` // sqlite (default) | memory
	Path        string `json:"path,omitempty" yaml:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty" yaml:"busy_timeout,omitempty"`
}

type NotifierConfig struct {
	RatePerSec    int    `json:"rate_per_sec,omitempty" yaml:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty" yaml:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty" yaml:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty" yaml:"retry_max_delay,omitempty"`
	SendTimeout   string `json:"send_timeout,omitempty" yaml:"send_timeout,omitempty"`
}

// PostingConfig holds app-wide defaults applied when a user turns auto-posting on
// without a channel or schedule of their own.
type PostingConfig struct {
	DefaultDestination int64 `json:"default_destination,omitempty" yaml:"default_destination,omitempty"`
	// DefaultSchedule accepts anything /set_schedule does ("0 10 * * *", "90m", "02:30").
	DefaultSchedule string `json:"default_schedule,omitempty" yaml:"default_schedule,omitempty"`
}
