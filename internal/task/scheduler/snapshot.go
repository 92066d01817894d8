package scheduler

import "posterbot/internal/task/engine"

type engineSnapshotter interface {
	Snapshot() engine.Snapshot
}

func (s *Service) Snapshot() Snapshot {
	jobs := s.Jobs()

	s.mu.Lock()
	running := s.c != nil
	tz := s.cfg.Timezone
	if s.loc != nil {
		tz = s.loc.String()
	}
	exec := s.exec
	s.mu.Unlock()

	snap := Snapshot{Running: running, Timezone: tz, Jobs: jobs}
	if es, ok := exec.(engineSnapshotter); ok {
		v := es.Snapshot()
		snap.Engine = &v
	}
	return snap
}
