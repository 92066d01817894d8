package scheduler

import (
	"time"

	"github.com/cockroachdb/errors"

	"posterbot/internal/task/engine"
	logx "posterbot/pkg/logx"
)

const enqueueWarnThrottle = 5 * time.Second

func (s *Service) reportEnqueueError(job string, err error) {
	if err == nil {
		return
	}
	// The previous firing is still in flight; this one is skipped, not queued.
	if errors.Is(err, engine.ErrOverlapSkip) {
		s.log.Debug("firing skipped: previous run in flight", logx.Job(job))
		return
	}

	now := time.Now()
	s.enqMu.Lock()
	last := s.lastEnqWarn[job]
	if !last.IsZero() && now.Sub(last) < enqueueWarnThrottle {
		s.enqMu.Unlock()
		return
	}
	s.lastEnqWarn[job] = now
	s.enqMu.Unlock()

	s.log.Warn("firing not enqueued", logx.Job(job), logx.Err(err))
}

func (s *Service) forgetEnqueueWarn(job string) {
	s.enqMu.Lock()
	delete(s.lastEnqWarn, job)
	s.enqMu.Unlock()
}
