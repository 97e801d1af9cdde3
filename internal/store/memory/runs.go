package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"lineageforge/internal/runs"
	id "lineageforge/pkg/domain"
	"lineageforge/pkg/platform/sentinel"
)

type RunStore struct {
	mu   sync.RWMutex
	runs map[id.RunID]runs.Run
}

func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[id.RunID]runs.Run)}
}

func (s *RunStore) Create(_ context.Context, run *runs.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %s: %w", run.ID, sentinel.ErrConflict)
	}
	s.runs[run.ID] = *run
	return nil
}

func (s *RunStore) Update(_ context.Context, run *runs.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; !exists {
		return fmt.Errorf("run %s: %w", run.ID, sentinel.ErrNotFound)
	}
	s.runs[run.ID] = *run
	return nil
}

func (s *RunStore) FindByID(_ context.Context, runID id.RunID) (*runs.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &run, nil
}

// ListRecent returns up to limit runs, newest first.
func (s *RunStore) ListRecent(_ context.Context, limit int) ([]*runs.Run, error) {
	s.mu.RLock()
	out := make([]*runs.Run, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, &r)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
