package scheduler

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"

	"posterbot/internal/eventbus"
	"posterbot/internal/task/cronspec"
	"posterbot/internal/task/engine"
	logx "posterbot/pkg/logx"
)

// JobIDPrefix prefixes the posting job id of every user.
const JobIDPrefix = "post_content_job_"

// JobID returns the posting job id for a user.
func JobID(userID int64) string {
	return JobIDPrefix + strconv.FormatInt(userID, 10)
}

var (
	ErrDuplicateJob      = errors.New("job already scheduled")
	ErrJobNotFound       = errors.New("job not found")
	ErrInvalidJob        = errors.New("invalid job")
	ErrInvalidRecurrence = errors.New("invalid recurrence")
)

// Config controls the trigger side of the scheduler.
type Config struct {
	Timezone string // IANA TZ, e.g. "Asia/Jakarta"; empty means Local

	// StartupSpread adds up to this much random delay to the first firing of
	// interval jobs. 0 disables it.
	StartupSpread time.Duration

	// JobTimeout bounds a single firing. 0 uses the engine default.
	JobTimeout time.Duration
}

// JobFunc is the callback run on every firing.
type JobFunc func(ctx context.Context) error

// Executor runs triggered firings. *engine.Service implements it.
type Executor interface {
	Enqueue(t engine.Task) error
}

type jobDef struct {
	id          string
	rec         cronspec.Recurrence
	fn          JobFunc
	entryID     cron.EntryID
	spread      time.Duration
	timeout     time.Duration
	scheduledAt time.Time
	state       *engine.RunState

	gate      sync.Mutex
	cancelled bool
}

type Service struct {
	mu sync.Mutex

	log  logx.Logger
	cfg  Config
	loc  *time.Location
	bus  eventbus.Bus
	exec Executor

	c    *cron.Cron
	jobs map[string]*jobDef

	// Builds the robfig schedule for a job; replaced in tests.
	schedFn scheduleFunc

	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time
}

// JobInfo describes a live job.
type JobInfo struct {
	ID          string
	Recurrence  cronspec.Recurrence
	ScheduledAt time.Time
	Spread      time.Duration
	Next        time.Time
	Prev        time.Time
	Busy        bool
}

type Snapshot struct {
	Running  bool
	Timezone string
	Jobs     []JobInfo
	Engine   *engine.Snapshot
}
