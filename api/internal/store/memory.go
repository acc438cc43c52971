package store

import (
	"context"
	"sync"
)

// MemoryStore keeps entries in process. Used when no database is configured.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]Entry)}
}

func (s *MemoryStore) Load(_ context.Context, key string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.m[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (s *MemoryStore) Save(_ context.Context, e Entry) error {
	s.mu.Lock()
	s.m[e.Key] = e
	s.mu.Unlock()
	return nil
}
