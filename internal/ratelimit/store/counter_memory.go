// Package store provides the TTL counter backends for the rate-limit gate.
package store

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	value     int64
	expiresAt time.Time
}

// InMemoryCounterStore keeps windowed counters in memory. For production, use
// RedisCounterStore so counts are shared across instances.
type InMemoryCounterStore struct {
	mu       sync.Mutex
	counters map[string]*counter
	now      func() time.Time
}

// NewInMemoryCounterStore creates an in-memory counter store.
func NewInMemoryCounterStore() *InMemoryCounterStore {
	return &InMemoryCounterStore{
		counters: make(map[string]*counter),
		now:      time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (s *InMemoryCounterStore) WithClock(now func() time.Time) *InMemoryCounterStore {
	s.now = now
	return s
}

// Incr increments the counter at key, setting the TTL on first increment.
func (s *InMemoryCounterStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	c, ok := s.counters[key]
	if !ok || now.After(c.expiresAt) {
		c = &counter{expiresAt: now.Add(ttl)}
		s.counters[key] = c
	}
	c.value++
	return c.value, nil
}

// Get returns the current counter value, or zero when absent or expired.
func (s *InMemoryCounterStore) Get(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[key]
	if !ok || s.now().After(c.expiresAt) {
		return 0, nil
	}
	return c.value, nil
}
