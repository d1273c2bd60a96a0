package orchestrator

import (
	"context"
	"fmt"
	"sync"
)

// RunStore persists run views so they outlive the orchestrator's memory.
// Save replaces any earlier view of the same run.
type RunStore interface {
	Save(ctx context.Context, v RunView) error
	Load(ctx context.Context, id string) (RunView, error)
	List(ctx context.Context) ([]RunView, error)
}

// MemoryRunStore is a RunStore backed by a map.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]RunView
}

// NewMemoryRunStore creates an empty store.
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[string]RunView)}
}

func (s *MemoryRunStore) Save(_ context.Context, v RunView) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[v.ID] = v
	return nil
}

// Load returns ErrRunNotFound for an unknown id.
func (s *MemoryRunStore) Load(_ context.Context, id string) (RunView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.runs[id]
	if !ok {
		return RunView{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return v, nil
}

func (s *MemoryRunStore) List(_ context.Context) ([]RunView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RunView, 0, len(s.runs))
	for _, v := range s.runs {
		out = append(out, v)
	}
	return out, nil
}
