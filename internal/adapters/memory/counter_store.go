package memory

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	n         int64
	expiresAt time.Time
}

// CounterStore is a process-local counter store for single-replica
// deployments and tests.
type CounterStore struct {
	mu       sync.Mutex
	now      func() time.Time
	counters map[string]*counter
	ops      int
}

func NewCounterStore(now func() time.Time) *CounterStore {
	if now == nil {
		now = time.Now
	}
	return &CounterStore{now: now, counters: make(map[string]*counter)}
}

const sweepEvery = 1024

func (s *CounterStore) Increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.ops++
	if s.ops%sweepEvery == 0 {
		s.sweep(now)
	}

	c, ok := s.counters[key]
	if !ok || !now.Before(c.expiresAt) {
		c = &counter{expiresAt: now.Add(ttl)}
		s.counters[key] = c
	}
	c.n++
	return c.n, nil
}

func (s *CounterStore) sweep(now time.Time) {
	for k, c := range s.counters {
		if !now.Before(c.expiresAt) {
			delete(s.counters, k)
		}
	}
}

// Len reports live and not-yet-swept counters.
func (s *CounterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters)
}
