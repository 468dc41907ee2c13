package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/alanyoungcy/betresolver/internal/cache/memory"
	"github.com/alanyoungcy/betresolver/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		Workers:            2,
		MaxAttempts:        3,
		BaseBackoff:        5 * time.Millisecond,
		MaxBackoff:         20 * time.Millisecond,
		PollInterval:       5 * time.Millisecond,
		LeaseTTL:           time.Second,
		CompletedRetention: time.Hour,
		FailedRetention:    time.Hour,
	}
}

func TestBackoff(t *testing.T) {
	base, max := 100*time.Millisecond, time.Second
	assert.Equal(t, 100*time.Millisecond, Backoff(0, base, max))
	assert.Equal(t, 100*time.Millisecond, Backoff(1, base, max))
	assert.Equal(t, 200*time.Millisecond, Backoff(2, base, max))
	assert.Equal(t, 400*time.Millisecond, Backoff(3, base, max))
	assert.Equal(t, time.Second, Backoff(5, base, max))
	assert.Equal(t, time.Second, Backoff(200, base, max))
}

func TestEnqueueDeduplicatesByKey(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	release := make(chan struct{})
	q := New(memory.NewJobBackend(), testConfig(), testLogger())
	q.Handle(domain.JobSetWinner, func(ctx context.Context, job domain.ResolutionJob) error {
		runs.Add(1)
		<-release
		return nil
	})

	job := domain.ResolutionJob{Type: domain.JobSetWinner, WagerID: "w1", Payload: map[string]string{"choice": "A"}}
	added, err := q.Enqueue(ctx, job)
	require.NoError(t, err)
	assert.True(t, added)
	added, err = q.Enqueue(ctx, job)
	require.NoError(t, err)
	assert.False(t, added)

	require.NoError(t, q.Start(ctx))
	defer q.Stop()

	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	// still running: a third enqueue collapses too
	added, _ = q.Enqueue(ctx, job)
	assert.False(t, added)
	close(release)

	assert.Eventually(t, func() bool {
		c, _ := q.Counts(ctx)
		return c.Completed == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
}

func TestTransientFailureRetriesThenSucceeds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	q := New(memory.NewJobBackend(), testConfig(), testLogger())
	q.Handle(domain.JobWash, func(ctx context.Context, job domain.ResolutionJob) error {
		if runs.Add(1) < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	_, err := q.Enqueue(ctx, domain.ResolutionJob{Type: domain.JobWash, WagerID: "w1"})
	require.NoError(t, err)

	require.NoError(t, q.Start(ctx))
	defer q.Stop()

	assert.Eventually(t, func() bool {
		c, _ := q.Counts(ctx)
		return c.Completed == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), runs.Load())
}

func TestExhaustedAttemptsDeadLetter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var dead []domain.ResolutionJob
	q := New(memory.NewJobBackend(), testConfig(), testLogger(),
		WithDeadLetterHook(func(_ context.Context, job domain.ResolutionJob) {
			mu.Lock()
			dead = append(dead, job)
			mu.Unlock()
		}),
	)
	q.Handle(domain.JobSetWinner, func(context.Context, domain.ResolutionJob) error {
		return errors.New("db unavailable")
	})
	_, err := q.Enqueue(ctx, domain.ResolutionJob{Type: domain.JobSetWinner, WagerID: "w1"})
	require.NoError(t, err)

	require.NoError(t, q.Start(ctx))
	defer q.Stop()

	assert.Eventually(t, func() bool {
		c, _ := q.Counts(ctx)
		return c.Failed == 1
	}, 2*time.Second, 5*time.Millisecond)

	failed, err := q.Failed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 3, failed[0].Attempts)
	assert.Equal(t, "db unavailable", failed[0].LastError)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, dead, 1)
	assert.Equal(t, "w1", dead[0].WagerID)
}

func TestPermanentFailureSkipsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	q := New(memory.NewJobBackend(), testConfig(), testLogger())
	q.Handle(domain.JobSetWinner, func(context.Context, domain.ResolutionJob) error {
		runs.Add(1)
		return domain.Invalidf("choice missing")
	})
	_, _ = q.Enqueue(ctx, domain.ResolutionJob{Type: domain.JobSetWinner, WagerID: "w1"})

	require.NoError(t, q.Start(ctx))
	defer q.Stop()

	assert.Eventually(t, func() bool {
		c, _ := q.Counts(ctx)
		return c.Failed == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
}

func TestMissingHandlerDeadLetters(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := New(memory.NewJobBackend(), testConfig(), testLogger())
	_, _ = q.Enqueue(ctx, domain.ResolutionJob{Type: domain.JobRecordHistory, WagerID: "w1"})
	require.NoError(t, q.Start(ctx))
	defer q.Stop()

	assert.Eventually(t, func() bool {
		c, _ := q.Counts(ctx)
		return c.Failed == 1
	}, time.Second, 5*time.Millisecond)
}

func TestEnqueueRejectsIncompleteJob(t *testing.T) {
	q := New(memory.NewJobBackend(), testConfig(), testLogger())
	_, err := q.Enqueue(context.Background(), domain.ResolutionJob{Type: domain.JobWash})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestStartTwiceAndStopIdempotent(t *testing.T) {
	q := New(memory.NewJobBackend(), testConfig(), testLogger())
	require.NoError(t, q.Start(context.Background()))
	assert.Error(t, q.Start(context.Background()))
	assert.NoError(t, q.Stop())
	assert.NoError(t, q.Stop())
}

func TestProcessedCounterRecordsOutcome(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	q := New(memory.NewJobBackend(), testConfig(), testLogger(), WithMeterProvider(mp))
	q.Handle(domain.JobWash, func(context.Context, domain.ResolutionJob) error { return nil })
	_, _ = q.Enqueue(ctx, domain.ResolutionJob{Type: domain.JobWash, WagerID: "w1"})

	require.NoError(t, q.Start(ctx))
	assert.Eventually(t, func() bool {
		c, _ := q.Counts(ctx)
		return c.Completed == 1
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, q.Stop())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "resolver.jobs.processed" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	assert.Equal(t, int64(1), total)
}
