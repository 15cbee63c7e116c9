package memory

import (
	"context"
	"sync"

	"github.com/crewd/crewd/pkg/domain"
)

// OverrideStore is an in-memory implementation of ports.OverrideStore.
type OverrideStore struct {
	mu        sync.RWMutex
	overrides map[string]domain.ProfileOverrides
}

// NewOverrideStore creates an in-memory override store.
func NewOverrideStore() *OverrideStore {
	return &OverrideStore{
		overrides: make(map[string]domain.ProfileOverrides),
	}
}

// GetOverrides returns the stored overrides for a worker id, or (nil, nil)
// on a miss.
func (s *OverrideStore) GetOverrides(ctx context.Context, workerID string) (*domain.ProfileOverrides, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.overrides[workerID]
	if !ok {
		return nil, nil
	}
	copied := o
	return &copied, nil
}

// SaveOverrides stores overrides for a worker id. A nil value clears them.
func (s *OverrideStore) SaveOverrides(ctx context.Context, workerID string, o *domain.ProfileOverrides) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o == nil {
		delete(s.overrides, workerID)
		return nil
	}
	s.overrides[workerID] = *o
	return nil
}
