package breaker

import (
	"sort"
	"sync"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

// Set holds the named breakers of one process.
type Set struct {
	mu       sync.RWMutex
	cfg      Config
	breakers map[string]*Breaker
}

// NewSet creates an empty set whose breakers share cfg.
func NewSet(cfg Config) *Set {
	return &Set{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for name, creating it on first use.
func (s *Set) Get(name string) *Breaker {
	s.mu.RLock()
	b, ok := s.breakers[name]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.breakers[name]; ok {
		return b
	}
	b = New(name, s.cfg)
	s.breakers[name] = b
	return b
}

// Reset closes the named breaker. It returns domain.ErrNotFound for an
// unknown name.
func (s *Set) Reset(name string) error {
	s.mu.RLock()
	b, ok := s.breakers[name]
	s.mu.RUnlock()
	if !ok {
		return domain.ErrNotFound
	}
	b.Reset()
	return nil
}

// Snapshots lists every breaker sorted by name.
func (s *Set) Snapshots() []domain.BreakerSnapshot {
	s.mu.RLock()
	out := make([]domain.BreakerSnapshot, 0, len(s.breakers))
	for _, b := range s.breakers {
		out = append(out, b.Snapshot())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
