package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps jobs in process memory. It is the default backend and
// loses everything on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]Job)}
}

func (s *MemoryStore) Create(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, job.ID)
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *MemoryStore) Finalize(_ context.Context, id string, outcome Outcome) error {
	if err := outcome.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := job.apply(outcome); err != nil {
		return err
	}
	s.jobs[id] = job
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return job, nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		return []Job{}, nil
	}
	s.mu.RLock()
	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortNewestFirst(jobs []Job) {
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].StartedAt.Equal(jobs[j].StartedAt) {
			return jobs[i].ID > jobs[j].ID
		}
		return jobs[i].StartedAt.After(jobs[j].StartedAt)
	})
}
