package domain

import (
	"context"
	"time"
)

// IdempotencyStore is a shared key-value store with an atomic swap.
type IdempotencyStore interface {
	// Swap stores value under key with ttl and returns the previous value.
	// found is false when the key was absent.
	Swap(ctx context.Context, key, value string, ttl time.Duration) (prev string, found bool, err error)
	// Restore undoes a Swap: if key still holds current it is set back to
	// prev, or deleted when hadPrev is false. A key overwritten by another
	// writer in the meantime is left alone.
	Restore(ctx context.Context, key, current, prev string, hadPrev bool, ttl time.Duration) error
}

// SnapshotCache keeps the most recent snapshot per event.
type SnapshotCache interface {
	Put(ctx context.Context, snap GameSnapshot, ttl time.Duration) error
	Latest(ctx context.Context, eventID string) (GameSnapshot, error)
}

// JobBackend stores resolution jobs. Implementations must make every
// operation atomic across processes.
type JobBackend interface {
	// Enqueue adds job unless a job with the same key is waiting, delayed or
	// active. added is false when deduplicated.
	Enqueue(ctx context.Context, job ResolutionJob) (added bool, err error)
	// Dequeue leases the next runnable job until now+lease. ok is false when
	// nothing is runnable.
	Dequeue(ctx context.Context, now time.Time, lease time.Duration) (job ResolutionJob, ok bool, err error)
	Complete(ctx context.Context, key string, now time.Time, retention time.Duration) error
	// Retry records the failed attempt and schedules the job for at.
	Retry(ctx context.Context, job ResolutionJob, at time.Time) error
	DeadLetter(ctx context.Context, job ResolutionJob, now time.Time, retention time.Duration) error
	// Maintain promotes due delayed jobs, returns expired leases to waiting
	// and evicts completed/failed jobs past their retention.
	Maintain(ctx context.Context, now time.Time) error
	Counts(ctx context.Context) (JobCounts, error)
	Failed(ctx context.Context, limit int) ([]ResolutionJob, error)
}

// SignalBus provides pub/sub between processes.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// LockManager hands out short-lived exclusive leases across processes.
type LockManager interface {
	// Acquire returns ErrLockHeld when another holder owns key. The returned
	// release func is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}
