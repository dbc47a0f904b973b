package scheduler

import "sort"

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	tasks := make([]TaskInfo, 0, len(s.entries))
	for _, e := range s.entries {
		tasks = append(tasks, TaskInfo{
			Name:       e.name,
			Remaining:  e.remaining,
			Interval:   e.interval,
			Generation: e.gen,
			EnabledAt:  e.enabledAt,
			Next:       e.next,
		})
	}
	pending := s.pending
	maxPending := s.cfg.MaxPending
	s.mu.Unlock()

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Name < tasks[j].Name })

	s.hmu.Lock()
	hist := make([]HistoryItem, len(s.history))
	copy(hist, s.history)
	s.hmu.Unlock()

	return Snapshot{
		Tasks:       tasks,
		Pending:     pending,
		MaxPending:  maxPending,
		WriterBound: s.writer.Bound(),
		History:     hist,
	}
}
