package store

import (
	"context"
	"sort"
	"sync"

	"calendard/internal/event"
)

// memoryStore keeps events in a mutex-guarded map. The mutex makes
// IncrementExecution an atomic read-modify-write, matching the contract the
// SQL drivers get from single-statement updates.
type memoryStore struct {
	mu     sync.Mutex
	events map[string]event.Event
}

// NewMemory returns an in-process store. Intended for tests and development.
func NewMemory() Store {
	return &memoryStore{events: map[string]event.Event{}}
}

func (s *memoryStore) CreateEvent(_ context.Context, ev event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.ID] = ev
	return nil
}

func (s *memoryStore) GetEvent(_ context.Context, id string) (event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return event.Event{}, ErrNotFound
	}
	return ev, nil
}

func (s *memoryStore) ListEvents(_ context.Context) ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.Event, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memoryStore) IncrementExecution(_ context.Context, id string, finished bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return 0, ErrNotFound
	}
	ev.ExecutionCounter++
	if finished {
		ev.Processed = true
	}
	s.events[id] = ev
	return ev.ExecutionCounter, nil
}

func (s *memoryStore) Close() error { return nil }
