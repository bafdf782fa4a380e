// Package ratelimit provides the cooldown state stores behind the validator's
// RateLimitStore interface.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps cooldown state in a process-local map. State is lost on
// restart, which is acceptable: the cooldown throttles, it never authorizes.
type MemoryStore struct {
	mu   sync.RWMutex
	last map[int64]time.Time
}

// NewMemoryStore creates an empty in-process cooldown store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		last: make(map[int64]time.Time),
	}
}

// LastAccepted returns the recorded last-accepted time for the user.
func (s *MemoryStore) LastAccepted(_ context.Context, userID int64) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.last[userID]
	return t, ok, nil
}

// MarkAccepted records an accepted submission time for the user.
func (s *MemoryStore) MarkAccepted(_ context.Context, userID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[userID] = at
	return nil
}

// Len returns the number of users with recorded state.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.last)
}
