// Package source delivers refined game snapshots from ingestion to the change
// detector. Each Source owns its transport; Fanout runs several at once.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

// Handler receives each snapshot. An error is logged by the source; the
// snapshot is redelivered only where the transport supports it.
type Handler func(ctx context.Context, snap domain.GameSnapshot) error

// Source produces snapshots until ctx is done.
type Source interface {
	Name() string
	Run(ctx context.Context, h Handler) error
}

func decodeSnapshot(data []byte) (domain.GameSnapshot, error) {
	var snap domain.GameSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.GameSnapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// Fanout runs every source under one errgroup. A source returning an error
// stops the others.
type Fanout struct {
	sources []Source
	logger  *slog.Logger
}

// NewFanout creates a Fanout over sources.
func NewFanout(logger *slog.Logger, sources ...Source) *Fanout {
	return &Fanout{sources: sources, logger: logger.With(slog.String("component", "sources"))}
}

// Len reports how many sources are configured.
func (f *Fanout) Len() int { return len(f.sources) }

// Run blocks until ctx is done or a source fails.
func (f *Fanout) Run(ctx context.Context, h Handler) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range f.sources {
		g.Go(func() error {
			f.logger.InfoContext(gctx, "source started", slog.String("source", s.Name()))
			if err := s.Run(gctx, h); err != nil {
				return fmt.Errorf("source %s: %w", s.Name(), err)
			}
			f.logger.InfoContext(gctx, "source stopped", slog.String("source", s.Name()))
			return nil
		})
	}
	return g.Wait()
}

func dispatch(ctx context.Context, logger *slog.Logger, h Handler, snap domain.GameSnapshot) error {
	if snap.EventID == "" {
		logger.WarnContext(ctx, "snapshot without event id dropped")
		return nil
	}
	if err := h(ctx, snap); err != nil {
		logger.ErrorContext(ctx, "snapshot handling failed",
			slog.String("event_id", snap.EventID),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}
