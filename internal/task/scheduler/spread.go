package scheduler

import (
	"hash/fnv"
	"time"

	"github.com/robfig/cron/v3"

	"posterbot/internal/task/cronspec"
)

const maxStartupSpread = 30 * time.Second

// delayedStart fires first at a fixed time, then follows base.
type delayedStart struct {
	base  cron.Schedule
	first time.Time
}

func (s *delayedStart) Next(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

type scheduleFunc func(rec cronspec.Recurrence, now time.Time, jobID string) (cron.Schedule, time.Duration, error)

// buildSchedule returns the factory Schedule uses. With spread > 0 an interval job's
// first firing is pushed back by an offset derived from its id, bounded by spread,
// the interval and maxStartupSpread. A restart replaying many users thus staggers
// them, and each user keeps the same offset across restarts. Cron jobs are untouched.
func buildSchedule(spread time.Duration) scheduleFunc {
	return func(rec cronspec.Recurrence, now time.Time, jobID string) (cron.Schedule, time.Duration, error) {
		base, err := rec.Schedule()
		if err != nil || spread <= 0 || rec.Kind() != cronspec.KindInterval {
			return base, 0, err
		}
		offset := spreadOffset(jobID, min(spread, rec.Interval(), maxStartupSpread))
		return &delayedStart{base: base, first: now.Add(rec.Interval() + offset)}, offset, nil
	}
}

// spreadOffset maps id onto [0, limit) in whole milliseconds.
func spreadOffset(id string, limit time.Duration) time.Duration {
	ms := limit.Milliseconds()
	if ms <= 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return time.Duration(h.Sum64()%uint64(ms)) * time.Millisecond
}
