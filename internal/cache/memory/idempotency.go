// Package memory implements the cache-layer interfaces in process memory.
// It backs single-process deployments without Redis and the test suites.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

type item struct {
	value    string
	expireAt time.Time
}

func (it item) live(now time.Time) bool {
	return it.expireAt.IsZero() || now.Before(it.expireAt)
}

// IdempotencyStore implements domain.IdempotencyStore.
type IdempotencyStore struct {
	mu    sync.Mutex
	items map[string]item
	now   func() time.Time
}

// Compile-time interface check.
var _ domain.IdempotencyStore = (*IdempotencyStore)(nil)

// NewIdempotencyStore creates an empty store.
func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{items: make(map[string]item), now: time.Now}
}

func (s *IdempotencyStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

// Swap implements domain.IdempotencyStore.
func (s *IdempotencyStore) Swap(_ context.Context, key, value string, ttl time.Duration) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.items[key]
	if ok && !old.live(s.now()) {
		ok = false
	}
	s.items[key] = item{value: value, expireAt: s.expiry(ttl)}
	if !ok {
		return "", false, nil
	}
	return old.value, true, nil
}

// Restore implements domain.IdempotencyStore.
func (s *IdempotencyStore) Restore(_ context.Context, key, current, prev string, hadPrev bool, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[key]
	if !ok || !it.live(s.now()) || it.value != current {
		return nil
	}
	if !hadPrev {
		delete(s.items, key)
		return nil
	}
	s.items[key] = item{value: prev, expireAt: s.expiry(ttl)}
	return nil
}

// Get returns the live value for key. Used by tests and diagnostics.
func (s *IdempotencyStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[key]
	if !ok || !it.live(s.now()) {
		return "", false
	}
	return it.value, true
}
