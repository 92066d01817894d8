package engine

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"posterbot/internal/eventbus"
	logx "posterbot/pkg/logx"
)

func (s *Service) worker(ctx context.Context, g *runGen) {
	for {
		// Stop wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-g.stopping:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-g.stopping:
			return
		case qt := <-g.queue:
			s.inFlight.Add(1)
			s.execOne(ctx, qt)
			s.inFlight.Add(-1)
		}
	}
}

func (s *Service) execOne(ctx context.Context, qt queuedTask) {
	defer qt.task.State.release()

	t := qt.task
	start := time.Now()
	queueDelay := max(start.Sub(qt.enqueuedAt), 0)
	if s.cfg.MaxQueueDelay > 0 && queueDelay > s.cfg.MaxQueueDelay {
		s.dropped(start, t, "stale_queue_delay", queueDelay)
		return
	}

	log := s.log.With(logx.String("task", t.Name), logx.String("task_id", t.ID))
	log.Debug("task started", logx.Duration("queue_delay", queueDelay))
	eventbus.Publish(s.bus, eventbus.TaskStarted, TaskEvent{ID: t.ID, Name: t.Name, Started: start, QueueDelay: queueDelay})

	err := s.runTask(ctx, log, qt)

	ev := TaskEvent{ID: t.ID, Name: t.Name, Started: start, QueueDelay: queueDelay, Duration: time.Since(start)}
	if err != nil {
		ev.Error = err.Error()
		log.Warn("task failed", logx.Err(err), logx.Duration("dur", ev.Duration))
		eventbus.Publish(s.bus, eventbus.TaskFailed, ev)
	} else {
		log.Debug("task finished", logx.Duration("dur", ev.Duration))
		eventbus.Publish(s.bus, eventbus.TaskFinished, ev)
	}
	s.history.add(ev)
}

// runTask runs the task once under its timeout. A panic becomes an error so the
// worker survives.
func (s *Service) runTask(ctx context.Context, log logx.Logger, qt queuedTask) (err error) {
	if qt.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, qt.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("panic: %v", r)
			log.Error("task panicked", logx.Panic(r, 3))
		}
	}()
	return qt.task.Run(ctx)
}
