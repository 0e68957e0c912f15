package memory

import (
	"context"
	"sync"

	"shop-analytics/internal/domain"
	"shop-analytics/internal/storage"
)

// CheckpointStore is an in-memory implementation of storage.CheckpointStore.
type CheckpointStore struct {
	mu   sync.RWMutex
	done map[domain.ScopeKind]map[string]string // stage -> entity key -> run id
}

// NewCheckpointStore creates a new in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{
		done: make(map[domain.ScopeKind]map[string]string),
	}
}

// Mark records a completed entity.
func (s *CheckpointStore) Mark(_ context.Context, cp domain.Checkpoint) error {
	if cp.Stage == "" || cp.EntityKey == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done[cp.Stage] == nil {
		s.done[cp.Stage] = make(map[string]string)
	}
	s.done[cp.Stage][cp.EntityKey] = cp.RunID
	return nil
}

// Completed returns entity keys marked for the stage.
func (s *CheckpointStore) Completed(_ context.Context, stage domain.ScopeKind) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]bool, len(s.done[stage]))
	for k := range s.done[stage] {
		out[k] = true
	}
	return out, nil
}

// Clear removes every checkpoint of the stage.
func (s *CheckpointStore) Clear(_ context.Context, stage domain.ScopeKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.done, stage)
	return nil
}

var _ storage.CheckpointStore = (*CheckpointStore)(nil)
