package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

func TestIdempotencySwapAndRestore(t *testing.T) {
	ctx := context.Background()
	s := NewIdempotencyStore()

	prev, found, err := s.Swap(ctx, "k", "a", time.Minute)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, prev)

	prev, found, err = s.Swap(ctx, "k", "b", time.Minute)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "a", prev)

	require.NoError(t, s.Restore(ctx, "k", "b", "a", true, time.Minute))
	v, _ := s.Get("k")
	assert.Equal(t, "a", v)

	// another writer got there first: restore is a no-op
	_, _, _ = s.Swap(ctx, "k", "c", time.Minute)
	require.NoError(t, s.Restore(ctx, "k", "b", "a", true, time.Minute))
	v, _ = s.Get("k")
	assert.Equal(t, "c", v)

	require.NoError(t, s.Restore(ctx, "k", "c", "", false, time.Minute))
	_, ok := s.Get("k")
	assert.False(t, ok)
}

func TestIdempotencyTTL(t *testing.T) {
	ctx := context.Background()
	s := NewIdempotencyStore()
	now := time.Now()
	s.now = func() time.Time { return now }

	_, _, _ = s.Swap(ctx, "k", "a", time.Second)
	now = now.Add(2 * time.Second)
	_, found, err := s.Swap(ctx, "k", "a", time.Second)
	require.NoError(t, err)
	assert.False(t, found, "expired entries are forgotten")
}

func TestSnapshotCache(t *testing.T) {
	ctx := context.Background()
	c := NewSnapshotCache()
	_, err := c.Latest(ctx, "1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, c.Put(ctx, domain.GameSnapshot{EventID: "1", Status: domain.StatusFinal}, time.Minute))
	snap, err := c.Latest(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinal, snap.Status)
}

func job(wager string, typ domain.JobType) domain.ResolutionJob {
	return domain.ResolutionJob{Key: domain.JobKey(wager, typ), Type: typ, WagerID: wager}
}

func TestJobBackendDedupAndLifecycle(t *testing.T) {
	ctx := context.Background()
	b := NewJobBackend()
	now := time.Now()

	added, err := b.Enqueue(ctx, job("w1", domain.JobSetWinner))
	require.NoError(t, err)
	assert.True(t, added)
	added, _ = b.Enqueue(ctx, job("w1", domain.JobSetWinner))
	assert.False(t, added)
	added, _ = b.Enqueue(ctx, job("w1", domain.JobWash))
	assert.True(t, added)

	j, ok, err := b.Dequeue(ctx, now, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.JobSetWinner, j.Type, "FIFO")
	assert.Equal(t, 1, j.Attempts)

	added, _ = b.Enqueue(ctx, job("w1", domain.JobSetWinner))
	assert.False(t, added, "active jobs still dedup")

	require.NoError(t, b.Complete(ctx, j.Key, now, time.Hour))
	c, _ := b.Counts(ctx)
	assert.Equal(t, domain.JobCounts{Waiting: 1, Completed: 1}, c)

	require.NoError(t, b.Maintain(ctx, now.Add(2*time.Hour)))
	c, _ = b.Counts(ctx)
	assert.Equal(t, int64(0), c.Completed)
}

func TestJobBackendRetryAndLeaseExpiry(t *testing.T) {
	ctx := context.Background()
	b := NewJobBackend()
	now := time.Now()
	_, _ = b.Enqueue(ctx, job("w1", domain.JobSetWinner))

	j, _, _ := b.Dequeue(ctx, now, time.Minute)
	j.LastError = "db down"
	require.NoError(t, b.Retry(ctx, j, now.Add(10*time.Second)))

	_, ok, _ := b.Dequeue(ctx, now.Add(5*time.Second), time.Minute)
	assert.False(t, ok, "not yet due")

	j, ok, _ = b.Dequeue(ctx, now.Add(10*time.Second), time.Minute)
	require.True(t, ok)
	assert.Equal(t, 2, j.Attempts)
	assert.Equal(t, "db down", j.LastError)

	// crash: lease runs out and the job goes back to waiting
	require.NoError(t, b.Maintain(ctx, now.Add(2*time.Minute)))
	c, _ := b.Counts(ctx)
	assert.Equal(t, int64(1), c.Waiting)

	j, _, _ = b.Dequeue(ctx, now.Add(2*time.Minute), time.Minute)
	require.NoError(t, b.DeadLetter(ctx, j, now, time.Hour))
	failed, err := b.Failed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 3, failed[0].Attempts)
	assert.NotNil(t, failed[0].FailedAt)
}

func TestSignalBus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := NewSignalBus()
	ch, err := bus.Subscribe(ctx, "c")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "c", []byte("hello")))
	assert.Equal(t, []byte("hello"), <-ch)

	cancel()
	_, open := <-ch
	assert.False(t, open)
}

func TestLockManager(t *testing.T) {
	ctx := context.Background()
	l := NewLockManager()
	now := time.Now()
	l.now = func() time.Time { return now }

	release, err := l.Acquire(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	_, err = l.Acquire(ctx, "sweep", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	release()
	release()
	release2, err := l.Acquire(ctx, "sweep", time.Minute)
	require.NoError(t, err)

	// an expired holder's late release must not free the new holder's lease
	now = now.Add(2 * time.Minute)
	release3, err := l.Acquire(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	release2()
	_, err = l.Acquire(ctx, "sweep", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
	release3()
}
