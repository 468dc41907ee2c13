// Package queue runs resolution jobs from a shared backend with a pool of
// workers. Jobs are deduplicated by key, retried with exponential backoff on
// transient failure, and dead-lettered after their attempt budget or on a
// permanent failure.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

// Handler processes one job. Returning nil completes it.
type Handler func(ctx context.Context, job domain.ResolutionJob) error

// DeadLetterHook observes jobs that will not be retried.
type DeadLetterHook func(ctx context.Context, job domain.ResolutionJob)

// Config tunes the worker pool and retry policy.
type Config struct {
	Workers            int
	MaxAttempts        int
	BaseBackoff        time.Duration
	MaxBackoff         time.Duration
	PollInterval       time.Duration
	LeaseTTL           time.Duration
	CompletedRetention time.Duration
	FailedRetention    time.Duration
}

// Option customises a Queue.
type Option func(*Queue)

// WithMeterProvider records metrics on mp instead of the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(q *Queue) { q.meter = mp.Meter("github.com/alanyoungcy/betresolver/queue") }
}

// WithDeadLetterHook registers fn for dead-lettered jobs.
func WithDeadLetterHook(fn DeadLetterHook) Option {
	return func(q *Queue) { q.onDeadLetter = fn }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// Queue is a durable, deduplicated job queue. Handlers must be registered
// before Start.
type Queue struct {
	backend      domain.JobBackend
	cfg          Config
	handlers     map[domain.JobType]Handler
	logger       *slog.Logger
	meter        metric.Meter
	processed    metric.Int64Counter
	enqueued     metric.Int64Counter
	onDeadLetter DeadLetterHook
	now          func() time.Time
	wake         chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan error
}

// New creates a Queue over backend.
func New(backend domain.JobBackend, cfg Config, logger *slog.Logger, opts ...Option) *Queue {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 30 * time.Second
	}
	q := &Queue{
		backend:  backend,
		cfg:      cfg,
		handlers: make(map[domain.JobType]Handler),
		logger:   logger.With(slog.String("component", "queue")),
		meter:    otel.Meter("github.com/alanyoungcy/betresolver/queue"),
		now:      time.Now,
		wake:     make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(q)
	}

	var err error
	if q.processed, err = q.meter.Int64Counter("resolver.jobs.processed",
		metric.WithDescription("Resolution jobs finished, by type and outcome"),
		metric.WithUnit("{job}"),
	); err != nil {
		q.logger.Warn("jobs.processed counter unavailable", slog.String("error", err.Error()))
	}
	if q.enqueued, err = q.meter.Int64Counter("resolver.jobs.enqueued",
		metric.WithDescription("Resolution jobs accepted or deduplicated"),
		metric.WithUnit("{job}"),
	); err != nil {
		q.logger.Warn("jobs.enqueued counter unavailable", slog.String("error", err.Error()))
	}
	return q
}

// Handle registers h for jobs of type t.
func (q *Queue) Handle(t domain.JobType, h Handler) {
	q.handlers[t] = h
}

// Enqueue submits job. The key defaults to domain.JobKey(job.WagerID,
// job.Type). added is false when an identical job is already waiting,
// delayed or running.
func (q *Queue) Enqueue(ctx context.Context, job domain.ResolutionJob) (bool, error) {
	if job.WagerID == "" || job.Type == "" {
		return false, domain.Invalidf("job needs a wager id and a type")
	}
	if job.Key == "" {
		job.Key = domain.JobKey(job.WagerID, job.Type)
	}
	job.Attempts = 0
	job.LastError = ""
	job.EnqueuedAt = q.now()

	added, err := q.backend.Enqueue(ctx, job)
	if err != nil {
		return false, fmt.Errorf("queue: enqueue %s: %w", job.Key, err)
	}
	q.count(ctx, q.enqueued, job.Type, map[bool]string{true: "added", false: "deduplicated"}[added])
	if added {
		select {
		case q.wake <- struct{}{}:
		default:
		}
	}
	return added, nil
}

// Counts reports queue depth.
func (q *Queue) Counts(ctx context.Context) (domain.JobCounts, error) {
	c, err := q.backend.Counts(ctx)
	if err != nil {
		return domain.JobCounts{}, fmt.Errorf("queue: counts: %w", err)
	}
	return c, nil
}

// Failed lists dead-lettered jobs, newest first.
func (q *Queue) Failed(ctx context.Context, limit int) ([]domain.ResolutionJob, error) {
	jobs, err := q.backend.Failed(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("queue: failed jobs: %w", err)
	}
	return jobs, nil
}

// Start launches the workers and the maintenance loop. It returns
// immediately; call Stop or cancel ctx to shut down.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancel != nil {
		return errors.New("queue: already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		worker := i
		g.Go(func() error { return q.work(gctx, worker) })
	}
	g.Go(func() error { return q.maintain(gctx) })

	q.cancel = cancel
	q.done = make(chan error, 1)
	go func() { q.done <- g.Wait() }()

	q.logger.Info("queue started",
		slog.Int("workers", q.cfg.Workers),
		slog.Int("max_attempts", q.cfg.MaxAttempts),
	)
	return nil
}

// Stop cancels the workers and waits for in-flight jobs to return.
func (q *Queue) Stop() error {
	q.mu.Lock()
	cancel, done := q.cancel, q.done
	q.cancel, q.done = nil, nil
	q.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	err := <-done
	q.logger.Info("queue stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Run starts the queue and blocks until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	if err := q.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return q.Stop()
}

func (q *Queue) work(ctx context.Context, worker int) error {
	logger := q.logger.With(slog.Int("worker", worker))
	for {
		if ctx.Err() != nil {
			return nil
		}
		job, ok, err := q.backend.Dequeue(ctx, q.now(), q.cfg.LeaseTTL)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("dequeue failed", slog.String("error", err.Error()))
		}
		if err != nil || !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-q.wake:
			case <-time.After(q.cfg.PollInterval):
			}
			continue
		}
		q.process(ctx, logger, job)
	}
}

func (q *Queue) process(ctx context.Context, logger *slog.Logger, job domain.ResolutionJob) {
	logger = logger.With(
		slog.String("job", job.Key),
		slog.Int("attempt", job.Attempts),
	)

	h, ok := q.handlers[job.Type]
	var err error
	if !ok {
		err = domain.Invalidf("no handler for job type %q", job.Type)
	} else {
		err = h(ctx, job)
	}

	// Shutdown mid-job: leave it leased. The lease expires and another
	// worker picks it up from scratch.
	if err != nil && ctx.Err() != nil {
		logger.Warn("job interrupted by shutdown")
		return
	}

	// bookkeeping must not be lost to a racing shutdown
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	now := q.now()

	if err == nil {
		if cerr := q.backend.Complete(bctx, job.Key, now, q.cfg.CompletedRetention); cerr != nil {
			logger.Error("complete failed", slog.String("error", cerr.Error()))
		}
		q.count(ctx, q.processed, job.Type, "completed")
		logger.Debug("job completed")
		return
	}

	job.LastError = err.Error()
	if domain.IsPermanent(err) || job.Attempts >= q.cfg.MaxAttempts {
		if derr := q.backend.DeadLetter(bctx, job, now, q.cfg.FailedRetention); derr != nil {
			logger.Error("dead-letter failed", slog.String("error", derr.Error()))
		}
		q.count(ctx, q.processed, job.Type, "dead_lettered")
		logger.Error("job dead-lettered", slog.String("error", err.Error()))
		if q.onDeadLetter != nil {
			q.onDeadLetter(bctx, job)
		}
		return
	}

	delay := Backoff(job.Attempts, q.cfg.BaseBackoff, q.cfg.MaxBackoff)
	if rerr := q.backend.Retry(bctx, job, now.Add(delay)); rerr != nil {
		logger.Error("retry scheduling failed", slog.String("error", rerr.Error()))
	}
	q.count(ctx, q.processed, job.Type, "retried")
	logger.Warn("job failed, retrying",
		slog.Duration("delay", delay),
		slog.String("error", err.Error()),
	)
}

func (q *Queue) maintain(ctx context.Context) error {
	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := q.backend.Maintain(ctx, q.now()); err != nil && ctx.Err() == nil {
				q.logger.Error("queue maintenance failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (q *Queue) count(ctx context.Context, c metric.Int64Counter, t domain.JobType, outcome string) {
	if c == nil {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", string(t)),
		attribute.String("outcome", outcome),
	))
}

// Backoff returns the delay before retrying after the given attempt (1-based):
// base * 2^(attempt-1), capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > 30 {
		shift = 30
	}
	d := base * time.Duration(int64(1)<<shift)
	if max > 0 && (d > max || d <= 0) {
		d = max
	}
	return d
}
