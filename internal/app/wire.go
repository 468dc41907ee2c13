package app

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	s3blob "github.com/alanyoungcy/betresolver/internal/blob/s3"
	"github.com/alanyoungcy/betresolver/internal/breaker"
	"github.com/alanyoungcy/betresolver/internal/cache/memory"
	"github.com/alanyoungcy/betresolver/internal/cache/redis"
	"github.com/alanyoungcy/betresolver/internal/config"
	"github.com/alanyoungcy/betresolver/internal/domain"
	"github.com/alanyoungcy/betresolver/internal/notify"
	"github.com/alanyoungcy/betresolver/internal/server/handler"
	"github.com/alanyoungcy/betresolver/internal/store/postgres"
	"github.com/alanyoungcy/betresolver/internal/store/sqlite"
)

// Dependencies bundles the concrete backends the modes run on. It is built by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	Wagers    domain.WagerStore
	History   domain.HistoryStore
	Baselines domain.BaselineStore
	Progress  domain.ProgressStore

	// Coordination
	Idempotency domain.IdempotencyStore
	Snapshots   domain.SnapshotCache
	Jobs        domain.JobBackend
	Bus         domain.SignalBus
	Locks       domain.LockManager
	// Shared is false when coordination is process-local.
	Shared bool

	// Blob storage; nil unless S3 is in use.
	BlobReader domain.BlobReader
	Evidence   domain.EvidenceArchiver

	Breakers *breaker.Set
	Notifier *notify.Notifier
	Meters   *sdkmetric.MeterProvider
	Metrics  *sdkmetric.ManualReader

	// Checks feed the health endpoint.
	Checks map[string]handler.Pinger
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Wire constructs every backend selected by cfg.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{
		Breakers: breaker.NewSet(breaker.Config{
			Threshold: cfg.Breaker.Threshold,
			Cooldown:  cfg.Breaker.Cooldown.Duration,
		}),
		Checks: make(map[string]handler.Pinger),
	}

	// --- Metrics ---
	deps.Metrics = sdkmetric.NewManualReader()
	deps.Meters = sdkmetric.NewMeterProvider(sdkmetric.WithReader(deps.Metrics))
	otel.SetMeterProvider(deps.Meters)
	closers = append(closers, func() { _ = deps.Meters.Shutdown(context.Background()) })

	// --- Relational store ---
	switch cfg.Store.Driver {
	case "postgres":
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pg.Close)
		if cfg.Supabase.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		pool := pg.Pool()
		deps.Wagers = postgres.NewWagerStore(pool)
		deps.History = postgres.NewHistoryStore(pool)
		deps.Baselines = postgres.NewBaselineStore(pool)
		deps.Progress = postgres.NewProgressStore(pool)
		deps.Checks["postgres"] = pg

	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return fail(fmt.Errorf("wire: sqlite: %w", err))
		}
		closers = append(closers, func() { _ = db.Close() })
		deps.Wagers = db.WagerStore()
		deps.History = db.HistoryStore()
		deps.Baselines = db.BaselineStore()
		deps.Progress = db.ProgressStore()
		deps.Checks["sqlite"] = db

	default:
		return fail(fmt.Errorf("wire: unknown store driver %q", cfg.Store.Driver))
	}

	// --- Coordination ---
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = rc.Close() })
		deps.Idempotency = redis.NewIdempotencyStore(rc)
		deps.Snapshots = redis.NewSnapshotCache(rc)
		deps.Jobs = redis.NewJobBackend(rc)
		deps.Bus = redis.NewSignalBus(rc)
		deps.Locks = redis.NewLockManager(rc)
		deps.Shared = true
		deps.Checks["redis"] = rc
	} else {
		logger.Warn("redis disabled; queue, dedup and locks are local to this process")
		deps.Idempotency = memory.NewIdempotencyStore()
		deps.Snapshots = memory.NewSnapshotCache()
		deps.Jobs = memory.NewJobBackend()
		deps.Bus = memory.NewSignalBus()
		deps.Locks = memory.NewLockManager()
	}

	// --- S3 blob storage ---
	if cfg.Sources.S3Enabled || cfg.S3.ArchiveEvidence {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.BlobReader = s3blob.NewReader(sc)
		if cfg.S3.ArchiveEvidence {
			deps.Evidence = s3blob.NewEvidenceArchiver(s3blob.NewWriter(sc))
		}
		deps.Checks["s3"] = pingFunc(sc.Health)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
