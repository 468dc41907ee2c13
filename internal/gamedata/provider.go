package gamedata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/betresolver/internal/breaker"
	"github.com/alanyoungcy/betresolver/internal/domain"
)

// Fetcher returns a snapshot straight from upstream.
type Fetcher interface {
	Snapshot(ctx context.Context, eventID string) (domain.GameSnapshot, error)
}

// Guarded runs a Fetcher behind a circuit breaker.
type Guarded struct {
	fetcher Fetcher
	breaker *breaker.Breaker
}

// NewGuarded wraps f with b.
func NewGuarded(f Fetcher, b *breaker.Breaker) *Guarded {
	return &Guarded{fetcher: f, breaker: b}
}

// Snapshot returns available=false without calling upstream while the
// breaker is open.
func (g *Guarded) Snapshot(ctx context.Context, eventID string) (snap domain.GameSnapshot, available bool, err error) {
	return breaker.Execute(ctx, g.breaker, func(ctx context.Context) (domain.GameSnapshot, error) {
		return g.fetcher.Snapshot(ctx, eventID)
	})
}

// Provider serves snapshots from the cache, falling back to the guarded
// upstream. Fetched snapshots are written back to the cache.
type Provider struct {
	cache    domain.SnapshotCache
	upstream *Guarded
	ttl      time.Duration
	logger   *slog.Logger
}

// NewProvider creates a Provider. upstream may be nil when no game-data
// service is configured; cache misses then report domain.ErrUnavailable.
func NewProvider(cache domain.SnapshotCache, upstream *Guarded, ttl time.Duration, logger *slog.Logger) *Provider {
	return &Provider{
		cache:    cache,
		upstream: upstream,
		ttl:      ttl,
		logger:   logger.With(slog.String("component", "gamedata")),
	}
}

// Snapshot implements lifecycle.SnapshotProvider.
func (p *Provider) Snapshot(ctx context.Context, eventID string) (domain.GameSnapshot, error) {
	snap, err := p.cache.Latest(ctx, eventID)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		p.logger.WarnContext(ctx, "snapshot cache read failed",
			slog.String("event_id", eventID),
			slog.String("error", err.Error()),
		)
	}

	if p.upstream == nil {
		return domain.GameSnapshot{}, fmt.Errorf("gamedata: no snapshot for %s: %w", eventID, domain.ErrUnavailable)
	}
	snap, available, err := p.upstream.Snapshot(ctx, eventID)
	if !available {
		return domain.GameSnapshot{}, fmt.Errorf("gamedata: upstream breaker open for %s: %w", eventID, domain.ErrUnavailable)
	}
	if err != nil {
		if errors.Is(err, domain.ErrTransient) {
			return domain.GameSnapshot{}, fmt.Errorf("%w: %w", err, domain.ErrUnavailable)
		}
		return domain.GameSnapshot{}, err
	}

	if perr := p.cache.Put(ctx, snap, p.ttl); perr != nil {
		p.logger.WarnContext(ctx, "snapshot cache write failed",
			slog.String("event_id", eventID),
			slog.String("error", perr.Error()),
		)
	}
	return snap, nil
}
