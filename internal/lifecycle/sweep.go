package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/betresolver/internal/domain"
	"github.com/alanyoungcy/betresolver/internal/modes"
)

const sweepLockKey = "lifecycle:sweep"

// LockDueWagers moves active wagers whose close time has passed to pending,
// capturing baselines from the newest snapshot. Wagers whose mode needs a
// baseline stay active while no snapshot is available. It returns how many
// wagers this call locked.
func (s *Service) LockDueWagers(ctx context.Context) (int, error) {
	if s.deps.Locks != nil {
		release, err := s.deps.Locks.Acquire(ctx, sweepLockKey, s.cfg.SweepInterval)
		if errors.Is(err, domain.ErrLockHeld) {
			s.logger.DebugContext(ctx, "sweep running elsewhere")
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("lifecycle: sweep lock: %w", err)
		}
		defer release()
	}

	now := s.now()
	due, err := s.deps.Wagers.ListDueActive(ctx, now, s.cfg.SweepBatch)
	if err != nil {
		return 0, fmt.Errorf("lifecycle: list due wagers: %w", err)
	}

	snaps := make(map[string]*domain.GameSnapshot)
	locked := 0
	for _, w := range due {
		if ctx.Err() != nil {
			return locked, nil
		}
		mode, lookupErr := s.deps.Registry.Lookup(w.League, w.ModeKey)

		var snap *domain.GameSnapshot
		if _, needs := mode.(modes.Preparer); needs && lookupErr == nil {
			var ok bool
			if snap, ok = snaps[w.EventID]; !ok {
				got, err := s.deps.Snapshots.Snapshot(ctx, w.EventID)
				if err != nil {
					s.logger.WarnContext(ctx, "no snapshot for due wager, retrying next sweep",
						slog.String("wager_id", w.ID),
						slog.String("event_id", w.EventID),
						slog.String("error", err.Error()),
					)
					snaps[w.EventID] = nil
					continue
				}
				snap = &got
				snaps[w.EventID] = snap
			}
			if snap == nil {
				continue
			}
		}

		ok, washReason, err := s.lock(ctx, w, mode, snap, now)
		if err != nil {
			s.logger.ErrorContext(ctx, "lock failed",
				slog.String("wager_id", w.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !ok {
			continue
		}
		locked++
		if lookupErr != nil {
			washReason = lookupErr.Error()
		}
		if washReason != "" {
			if err := s.enqueueWash(ctx, w.ID, washReason); err != nil {
				s.logger.ErrorContext(ctx, "wash enqueue failed",
					slog.String("wager_id", w.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	if locked > 0 {
		s.logger.InfoContext(ctx, "sweep locked wagers", slog.Int("count", locked))
	}
	return locked, nil
}

// RunSweep calls LockDueWagers every SweepInterval until ctx is done.
func (s *Service) RunSweep(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "sweep started", slog.Duration("interval", s.cfg.SweepInterval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweep stopped")
			return nil
		case <-ticker.C:
			if _, err := s.LockDueWagers(ctx); err != nil && ctx.Err() == nil {
				s.logger.ErrorContext(ctx, "sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}
