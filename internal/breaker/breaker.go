// Package breaker implements a per-dependency circuit breaker. After a run of
// consecutive failures the breaker opens and calls short-circuit to a neutral
// "unavailable" result until a cooldown elapses, at which point a single probe
// call decides whether to close again.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

// State is the breaker state machine position.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Config sets the trip threshold and the open cooldown.
type Config struct {
	Threshold int
	Cooldown  time.Duration
}

// Breaker guards one upstream dependency. It is safe for concurrent use.
type Breaker struct {
	mu        sync.Mutex
	name      string
	threshold int
	cooldown  time.Duration
	state     State
	failures  int
	openedAt  time.Time
	probing   bool
	now       func() time.Time
}

// New creates a closed breaker.
func New(name string, cfg Config) *Breaker {
	if cfg.Threshold < 1 {
		cfg.Threshold = 1
	}
	return &Breaker{
		name:      name,
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
		state:     StateClosed,
		now:       time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.mu.Lock()
	b.now = now
	b.mu.Unlock()
	return b
}

// Name returns the dependency name.
func (b *Breaker) Name() string { return b.name }

// allow decides whether a call may proceed. probe is true when the caller is
// the single half-open trial.
func (b *Breaker) allow() (ok, probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true, false
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false, false
		}
		b.state = StateHalfOpen
		b.probing = true
		return true, true
	default: // half-open: only the probe in flight may pass
		if b.probing {
			return false, false
		}
		b.probing = true
		return true, true
	}
}

func (b *Breaker) record(err error, probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		b.probing = false
	}
	if err == nil {
		b.state = StateClosed
		b.failures = 0
		return
	}
	if b.state == StateHalfOpen {
		b.state = StateOpen
		b.openedAt = b.now()
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.state = StateOpen
		b.openedAt = b.now()
	}
}

// release hands back a probe slot without judging the dependency.
func (b *Breaker) release(probe bool) {
	if !probe {
		return
	}
	b.mu.Lock()
	b.probing = false
	b.mu.Unlock()
}

// Reset forces the breaker closed and clears the failure count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.probing = false
	b.openedAt = time.Time{}
}

// State returns the current state. An open breaker whose cooldown has elapsed
// still reports OPEN until the next call probes it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns the observable state for operators.
func (b *Breaker) Snapshot() domain.BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := domain.BreakerSnapshot{
		Name:     b.name,
		State:    string(b.state),
		Failures: b.failures,
	}
	if !b.openedAt.IsZero() && b.state != StateClosed {
		t := b.openedAt
		s.OpenedAt = &t
	}
	return s
}

// Execute runs fn through the breaker. When the breaker is open it returns the
// zero value with available=false and a nil error, without calling fn. When fn
// runs, its result and error are returned with available=true. Cancellation of
// the caller's context is not held against the dependency.
func Execute[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, bool, error) {
	var zero T
	ok, probe := b.allow()
	if !ok {
		return zero, false, nil
	}

	v, err := fn(ctx)
	if err != nil && (errors.Is(err, context.Canceled) || ctx.Err() != nil) {
		b.release(probe)
		return zero, true, err
	}
	if errors.Is(err, domain.ErrNotFound) {
		// the dependency answered; the thing asked for just isn't there
		b.record(nil, probe)
		return zero, true, err
	}
	b.record(err, probe)
	if err != nil {
		return zero, true, err
	}
	return v, true, nil
}

// Do is Execute for calls without a result.
func Do(ctx context.Context, b *Breaker, fn func(context.Context) error) (bool, error) {
	_, available, err := Execute(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return available, err
}
