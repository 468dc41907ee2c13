package app

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/betresolver/internal/detector"
	"github.com/alanyoungcy/betresolver/internal/gamedata"
	"github.com/alanyoungcy/betresolver/internal/lifecycle"
	"github.com/alanyoungcy/betresolver/internal/modes"
	"github.com/alanyoungcy/betresolver/internal/queue"
	"github.com/alanyoungcy/betresolver/internal/server"
	"github.com/alanyoungcy/betresolver/internal/server/handler"
	"github.com/alanyoungcy/betresolver/internal/server/ws"
	"github.com/alanyoungcy/betresolver/internal/source"
)

// core is the resolution pipeline shared by every mode.
type core struct {
	queue    *queue.Queue
	service  *lifecycle.Service
	detector *detector.Detector
}

func (a *App) buildCore(deps *Dependencies) *core {
	q := queue.New(deps.Jobs, queue.Config{
		Workers:            a.cfg.Queue.Workers,
		MaxAttempts:        a.cfg.Queue.MaxAttempts,
		BaseBackoff:        a.cfg.Queue.BaseBackoff.Duration,
		MaxBackoff:         a.cfg.Queue.MaxBackoff.Duration,
		PollInterval:       a.cfg.Queue.PollInterval.Duration,
		LeaseTTL:           a.cfg.Queue.LeaseTTL.Duration,
		CompletedRetention: a.cfg.Queue.CompletedRetention.Duration,
		FailedRetention:    a.cfg.Queue.FailedRetention.Duration,
	}, a.logger,
		queue.WithMeterProvider(deps.Meters),
		queue.WithDeadLetterHook(deps.Notifier.JobDeadLettered),
	)

	var upstream *gamedata.Guarded
	if a.cfg.GameData.BaseURL != "" {
		client := gamedata.NewClient(gamedata.ClientConfig{
			BaseURL:    a.cfg.GameData.BaseURL,
			APIKey:     a.cfg.GameData.APIKey,
			RatePerSec: a.cfg.GameData.RatePerSec,
			Burst:      a.cfg.GameData.Burst,
			Timeout:    a.cfg.GameData.Timeout.Duration,
		})
		upstream = gamedata.NewGuarded(client, deps.Breakers.Get("gamedata"))
	}
	provider := gamedata.NewProvider(deps.Snapshots, upstream, a.cfg.Detector.SnapshotTTL.Duration, a.logger)

	ld := lifecycle.Deps{
		Wagers:    deps.Wagers,
		History:   deps.History,
		Baselines: deps.Baselines,
		Progress:  deps.Progress,
		Snapshots: provider,
		Jobs:      q,
		Registry:  modes.NewDefaultRegistry(),
		Bus:       deps.Bus,
		Locks:     deps.Locks,
		Evidence:  deps.Evidence,
		Announcer: deps.Notifier,
	}
	svc := lifecycle.New(ld, lifecycle.Config{
		SweepInterval: a.cfg.Lifecycle.SweepInterval.Duration,
		SweepBatch:    a.cfg.Lifecycle.SweepBatch,
	}, a.logger)
	svc.RegisterHandlers(q)

	det := detector.New(deps.Idempotency, deps.Snapshots, svc, detector.Config{
		SignatureTTL: a.cfg.Detector.SignatureTTL.Duration,
		SnapshotTTL:  a.cfg.Detector.SnapshotTTL.Duration,
	}, a.logger)

	return &core{queue: q, service: svc, detector: det}
}

// WorkerMode consumes snapshots, runs the job workers and the close-time
// sweep.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting worker mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startWorker(ctx, g, deps, a.buildCore(deps))
	return g.Wait()
}

// ServerMode serves the operations API only. Jobs it enqueues are processed
// by worker processes sharing the same Redis.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")
	if !deps.Shared {
		a.logger.WarnContext(ctx, "server mode without redis: enqueued jobs will never run")
	}
	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, a.buildCore(deps))
	return g.Wait()
}

// FullMode runs the worker and the API in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	g, ctx := errgroup.WithContext(ctx)
	c := a.buildCore(deps)
	a.startWorker(ctx, g, deps, c)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, c)
	}
	return g.Wait()
}

func (a *App) startWorker(ctx context.Context, g *errgroup.Group, deps *Dependencies, c *core) {
	g.Go(func() error { return c.queue.Run(ctx) })
	g.Go(func() error { return c.service.RunSweep(ctx) })

	fan := a.buildSources(deps)
	if fan.Len() == 0 {
		a.logger.WarnContext(ctx, "no snapshot sources configured; only the sweep and the API will drive wagers")
		return
	}
	g.Go(func() error { return fan.Run(ctx, c.detector.Handle) })
}

func (a *App) buildSources(deps *Dependencies) *source.Fanout {
	var sources []source.Source
	if u := a.cfg.Sources.WebSocketURL; u != "" {
		sources = append(sources, source.NewWebSocketSource(u, a.logger))
	}
	if a.cfg.Sources.S3Enabled && deps.BlobReader != nil {
		sources = append(sources, source.NewS3Source(deps.BlobReader, a.cfg.Sources.S3Prefix, a.cfg.Sources.S3Interval.Duration, a.logger))
	}
	if ch := a.cfg.Sources.BusChannel; ch != "" {
		sources = append(sources, source.NewBusSource(deps.Bus, ch, a.logger))
	}
	return source.NewFanout(a.logger, sources...)
}

// startHTTPServer adds the API server and the resolution stream hub to g. The
// server shuts down gracefully when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, c *core) {
	hub := ws.NewHub(deps.Bus, a.cfg.Mode, a.logger)
	g.Go(func() error { return hub.Run(ctx) })

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RatePerSec:  a.cfg.Server.RatePerSec,
		RateBurst:   a.cfg.Server.RateBurst,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(deps.Checks, a.logger),
		Status:  handler.NewStatusHandler(a.cfg.Mode, a.startedAt, c.queue, deps.Breakers, a.logger),
		Wagers:  handler.NewWagerHandler(c.service, a.logger),
		Metrics: handler.NewMetricsHandler(deps.Metrics, a.logger),
	}, hub, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.String("addr", net.JoinHostPort("", strconv.Itoa(a.cfg.Server.Port))))
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	})
}
