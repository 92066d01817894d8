package scheduler

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"

	"posterbot/internal/eventbus"
	"posterbot/internal/task/cronspec"
	"posterbot/internal/task/engine"
	logx "posterbot/pkg/logx"
)

// Schedule registers a recurring job.
//
// Interval jobs first fire one interval after registration; cron jobs fire at the
// next matching instant in the scheduler timezone, recomputed after every firing.
// It fails with ErrDuplicateJob if id is already live.
func (s *Service) Schedule(id string, rec cronspec.Recurrence, fn JobFunc) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.Wrap(ErrInvalidJob, "id required")
	}
	if fn == nil {
		return errors.Wrapf(ErrInvalidJob, "job %q has no callback", id)
	}
	if rec.IsZero() {
		return errors.Wrapf(ErrInvalidRecurrence, "job %q has no recurrence", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; ok {
		return errors.Wrapf(ErrDuplicateJob, "job %q", id)
	}
	d := &jobDef{
		id:          id,
		rec:         rec,
		fn:          fn,
		scheduledAt: s.nowLocked(),
		state:       &engine.RunState{},
	}
	if s.c != nil {
		if err := s.addLocked(d); err != nil {
			return err
		}
	}
	s.jobs[id] = d

	fields := []logx.Field{logx.Job(id), logx.String("recurrence", rec.String())}
	if d.spread > 0 {
		fields = append(fields, logx.Duration("spread", d.spread))
	}
	if next := s.previewNextRunsLocked(d, 3); next != "" {
		fields = append(fields, logx.String("next", next))
	}
	s.log.Debug("job scheduled", fields...)
	eventbus.Publish(s.bus, eventbus.JobScheduled, id)
	return nil
}

// Cancel removes a job. Once Cancel returns no new firing of the job starts;
// a firing already running completes. It fails with ErrJobNotFound if id is absent.
func (s *Service) Cancel(id string) error {
	id = strings.TrimSpace(id)

	s.mu.Lock()
	d, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return errors.Wrapf(ErrJobNotFound, "job %q", id)
	}
	delete(s.jobs, id)
	if s.c != nil && d.entryID != 0 {
		s.c.Remove(d.entryID)
	}
	d.entryID = 0
	s.mu.Unlock()

	d.gate.Lock()
	d.cancelled = true
	d.gate.Unlock()
	s.forgetEnqueueWarn(id)

	s.log.Debug("job cancelled", logx.Job(id))
	eventbus.Publish(s.bus, eventbus.JobCancelled, id)
	return nil
}

// Has reports whether id is live.
func (s *Service) Has(id string) bool {
	s.mu.Lock()
	_, ok := s.jobs[strings.TrimSpace(id)]
	s.mu.Unlock()
	return ok
}

func (s *Service) Lookup(id string) (JobInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.jobs[strings.TrimSpace(id)]
	if !ok {
		return JobInfo{}, false
	}
	return s.infoLocked(d), true
}

// Jobs lists live jobs ordered by id.
func (s *Service) Jobs() []JobInfo {
	s.mu.Lock()
	out := make([]JobInfo, 0, len(s.jobs))
	for _, d := range s.jobs {
		out = append(out, s.infoLocked(d))
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Service) infoLocked(d *jobDef) JobInfo {
	it := JobInfo{
		ID:          d.id,
		Recurrence:  d.rec,
		ScheduledAt: d.scheduledAt,
		Spread:      d.spread,
		Busy:        d.state.Busy(),
	}
	if s.c != nil && d.entryID != 0 {
		e := s.c.Entry(d.entryID)
		it.Next = e.Next
		it.Prev = e.Prev
	}
	return it
}

func (s *Service) addLocked(d *jobDef) error {
	sched, spread, err := s.schedFn(d.rec, s.nowLocked(), d.id)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "job %q", d.id), ErrInvalidRecurrence)
	}
	d.spread = spread
	d.timeout = s.cfg.JobTimeout
	d.entryID = s.c.Schedule(sched, cron.FuncJob(func() { s.trigger(d) }))
	return nil
}

// trigger hands one firing to the executor. It runs on robfig's goroutine.
func (s *Service) trigger(d *jobDef) {
	d.gate.Lock()
	if d.cancelled {
		d.gate.Unlock()
		return
	}
	err := s.exec.Enqueue(engine.Task{
		Name:    d.id,
		Timeout: d.timeout,
		Run:     d.run,
		State:   d.state,
	})
	d.gate.Unlock()

	if err != nil {
		s.reportEnqueueError(d.id, err)
	}
}

func (d *jobDef) run(ctx context.Context) error {
	d.gate.Lock()
	cancelled := d.cancelled
	d.gate.Unlock()
	if cancelled {
		return nil
	}
	return d.fn(ctx)
}

// previewNextRunsLocked lists upcoming fire times for debug logs.
func (s *Service) previewNextRunsLocked(d *jobDef, n int) string {
	if !s.log.Enabled(logx.LevelDebug) || n <= 0 {
		return ""
	}
	sched, err := d.rec.Schedule()
	if err != nil {
		return ""
	}
	t := s.nowLocked()
	var b strings.Builder
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Format(time.DateTime))
	}
	return b.String()
}
