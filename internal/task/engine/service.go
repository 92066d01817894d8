package engine

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"posterbot/internal/eventbus"
	rtsup "posterbot/internal/runtime/supervisor"
	logx "posterbot/pkg/logx"
)

// Service runs tasks on a fixed pool of workers fed by a bounded queue.
// Firings from the scheduler land here; a task sharing a busy RunState is skipped.
type Service struct {
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	mu  sync.Mutex
	run *runGen // nil while stopped

	stats    counters
	inFlight atomic.Int32
	history  *ring

	warnFull  rate.Sometimes
	warnStale rate.Sometimes
}

// runGen is one Start..Stop generation of the worker pool.
type runGen struct {
	queue    chan queuedTask
	sup      *rtsup.Supervisor
	stopping chan struct{} // closed by Stop
	stopped  chan struct{} // closed once workers exited
}

type counters struct {
	skipped   atomic.Uint64
	queueFull atomic.Uint64
	stale     atomic.Uint64
}

type queuedTask struct {
	task       Task
	enqueuedAt time.Time
	timeout    time.Duration
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Service{
		cfg:       cfg,
		log:       log,
		bus:       bus,
		history:   newRing(cfg.HistorySize),
		warnFull:  rate.Sometimes{Interval: 5 * time.Second},
		warnStale: rate.Sometimes{Interval: 5 * time.Second},
	}
}

// Start launches the workers. Calling it while running is a no-op.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.run != nil {
		s.mu.Unlock()
		return
	}
	g := &runGen{
		queue:    make(chan queuedTask, s.cfg.QueueSize),
		sup:      rtsup.New(ctx, rtsup.WithLogger(s.log)),
		stopping: make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	s.run = g
	s.mu.Unlock()

	for i := 0; i < s.cfg.Workers; i++ {
		g.sup.GoRestart("worker."+strconv.Itoa(i), func(c context.Context) error {
			s.worker(c, g)
			select {
			case <-g.stopping:
				return nil
			default:
			}
			if c.Err() != nil {
				return nil
			}
			return errors.New("worker exited unexpectedly")
		}, rtsup.WithPublishFirstError(true))
	}
	s.log.Info("task engine started", logx.Int("workers", s.cfg.Workers), logx.Int("queue", s.cfg.QueueSize))
}

// Stop stops accepting tasks and waits for the workers or ctx.
// Running tasks see their context canceled; queued ones are discarded.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	g := s.run
	if g == nil {
		s.mu.Unlock()
		return
	}
	first := false
	select {
	case <-g.stopping:
	default:
		close(g.stopping)
		first = true
	}
	s.mu.Unlock()

	if first {
		g.sup.Cancel()
		go s.drain(g)
	}

	select {
	case <-g.stopped:
		s.log.Info("task engine stopped")
	case <-ctx.Done():
		s.log.Warn("task engine stop timed out", logx.Err(ctx.Err()))
	}
}

// drain waits for the workers, then frees the RunStates of tasks that never ran
// so their jobs can fire again after a restart.
func (s *Service) drain(g *runGen) {
	_ = g.sup.Wait(context.Background())
	for len(g.queue) > 0 {
		qt := <-g.queue
		qt.task.State.release()
	}
	s.mu.Lock()
	if s.run == g {
		s.run = nil
	}
	s.mu.Unlock()
	close(g.stopped)
}

// Enqueue never blocks: a full queue drops the task with ErrQueueFull.
func (s *Service) Enqueue(t Task) error {
	return s.enqueue(context.Background(), t, false)
}

// Submit blocks until the task is queued, ctx ends or the engine stops.
func (s *Service) Submit(ctx context.Context, t Task) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.enqueue(ctx, t, true)
}

func (s *Service) enqueue(ctx context.Context, t Task, block bool) error {
	if t.Run == nil {
		return errors.Wrap(ErrInvalidTask, "Run is nil")
	}
	if t.Name = strings.TrimSpace(t.Name); t.Name == "" {
		return errors.Wrap(ErrInvalidTask, "Name is required")
	}
	if strings.TrimSpace(t.ID) == "" {
		t.ID = uuid.NewString()
	}

	s.mu.Lock()
	g := s.run
	s.mu.Unlock()
	if g == nil {
		return ErrStopped
	}
	select {
	case <-g.stopping:
		return ErrStopping
	default:
	}

	now := time.Now()
	if !t.State.tryAcquire() {
		s.stats.skipped.Add(1)
		eventbus.Publish(s.bus, eventbus.TaskSkipped, TaskEvent{ID: t.ID, Name: t.Name, Started: now, Error: "overlap_skip"})
		s.log.Debug("task skipped: previous run in flight", logx.String("task", t.Name))
		return ErrOverlapSkip
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}
	qt := queuedTask{task: t, enqueuedAt: now, timeout: timeout}

	if !block {
		select {
		case g.queue <- qt:
			return nil
		default:
			t.State.release()
			s.dropped(now, t, "queue_full", 0)
			return ErrQueueFull
		}
	}
	select {
	case g.queue <- qt:
		return nil
	case <-ctx.Done():
		t.State.release()
		return ctx.Err()
	case <-g.stopping:
		t.State.release()
		return ErrStopping
	}
}

// dropped counts, publishes and (throttled) logs a task that will not run.
func (s *Service) dropped(now time.Time, t Task, reason string, queueDelay time.Duration) {
	ev := TaskEvent{ID: t.ID, Name: t.Name, Started: now, QueueDelay: queueDelay, Error: reason}
	eventbus.Publish(s.bus, eventbus.TaskDropped, ev)

	switch reason {
	case "queue_full":
		n := s.stats.queueFull.Add(1)
		s.warnFull.Do(func() {
			s.log.Warn("task dropped: queue full", logx.String("task", t.Name), logx.Uint64("dropped_queue_full", n))
		})
	default:
		n := s.stats.stale.Add(1)
		s.history.add(HistoryItem{ID: t.ID, Name: t.Name, Started: now, QueueDelay: queueDelay, Error: reason})
		s.warnStale.Do(func() {
			s.log.Warn("task dropped: stale queue", logx.String("task", t.Name),
				logx.Duration("queue_delay", queueDelay), logx.Uint64("dropped_stale", n))
		})
	}
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	g := s.run
	s.mu.Unlock()

	snap := Snapshot{
		Workers:          s.cfg.Workers,
		InFlight:         int(s.inFlight.Load()),
		Skipped:          s.stats.skipped.Load(),
		DroppedQueueFull: s.stats.queueFull.Load(),
		DroppedStale:     s.stats.stale.Load(),
		DefaultTimeout:   s.cfg.DefaultTimeout,
		MaxQueueDelay:    s.cfg.MaxQueueDelay,
		History:          s.history.items(),
	}
	if g != nil {
		snap.QueueLen, snap.QueueCap = len(g.queue), cap(g.queue)
		select {
		case <-g.stopping:
		default:
			snap.Running = true
		}
	}
	return snap
}

// ring keeps the last n history items, oldest first.
type ring struct {
	mu   sync.Mutex
	buf  []HistoryItem
	next int
	full bool
}

func newRing(n int) *ring { return &ring{buf: make([]HistoryItem, n)} }

func (r *ring) add(it HistoryItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buf) == 0 {
		return
	}
	r.buf[r.next] = it
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring) items() []HistoryItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]HistoryItem(nil), r.buf[:r.next]...)
	}
	out := make([]HistoryItem, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}
