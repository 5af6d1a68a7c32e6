package progress

import (
	"context"
	"sync"
)

// MemoryStore keeps timelines in an in-process map, suitable for a
// single-process deployment.
type MemoryStore struct {
	mu       sync.RWMutex
	timeline map[string][]Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{timeline: make(map[string][]Event)}
}

func (s *MemoryStore) Append(ctx context.Context, id string, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeline[id] = append(s.timeline[id], ev)
	return nil
}

func (s *MemoryStore) Events(ctx context.Context, id string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.timeline[id]
	out := make([]Event, len(events))
	copy(out, events)
	return out, nil
}

func (s *MemoryStore) Clear(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.timeline, id)
	return nil
}
