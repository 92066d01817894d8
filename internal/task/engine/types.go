package engine

import (
	"context"
	"sync/atomic"
	"time"
)

// Config sizes the worker pool. Zero values take the defaults in withDefaults.
type Config struct {
	Workers   int
	QueueSize int

	// DefaultTimeout applies to tasks without their own Timeout. 0 means none.
	DefaultTimeout time.Duration
	// MaxQueueDelay drops tasks that waited longer than this before a worker
	// picked them up. 0 keeps them regardless.
	MaxQueueDelay time.Duration

	HistorySize int
}

func (c Config) withDefaults() Config {
	c.Workers = cmpDefault(c.Workers, 4)
	c.QueueSize = cmpDefault(c.QueueSize, 256)
	c.HistorySize = cmpDefault(c.HistorySize, 200)
	return c
}

func cmpDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// RunState allows one execution at a time for the tasks that share it.
// It is held from a successful enqueue until the run ends or the task is dropped.
// A nil *RunState never blocks.
type RunState struct {
	held atomic.Bool
}

func (s *RunState) tryAcquire() bool {
	return s == nil || s.held.CompareAndSwap(false, true)
}

func (s *RunState) release() {
	if s != nil {
		s.held.Store(false)
	}
}

// Busy reports whether an execution is queued or running.
func (s *RunState) Busy() bool { return s != nil && s.held.Load() }

// Task is a unit of work executed by the engine.
type Task struct {
	ID      string // generated when empty
	Name    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
	State   *RunState
}

// TaskEvent is the payload of the task.* bus topics.
type TaskEvent struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Started    time.Time     `json:"started"`
	QueueDelay time.Duration `json:"queue_delay"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// HistoryItem is a finished, failed or stale-dropped execution.
type HistoryItem = TaskEvent

// Snapshot is a point-in-time view for /status and diagnostics.
type Snapshot struct {
	Running  bool
	Workers  int
	QueueLen int
	QueueCap int
	InFlight int

	Skipped          uint64
	DroppedQueueFull uint64
	DroppedStale     uint64

	DefaultTimeout time.Duration
	MaxQueueDelay  time.Duration

	History []HistoryItem
}
