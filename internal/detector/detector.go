package detector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

// Trigger is called once per meaningful snapshot change.
type Trigger interface {
	EvaluateEligibleWagers(ctx context.Context, eventID string) error
}

// Config controls key lifetimes.
type Config struct {
	SignatureTTL time.Duration
	SnapshotTTL  time.Duration
}

// Detector deduplicates snapshots across every process sharing the
// idempotency store.
type Detector struct {
	store   domain.IdempotencyStore
	cache   domain.SnapshotCache
	trigger Trigger
	cfg     Config
	logger  *slog.Logger
}

// New creates a Detector.
func New(store domain.IdempotencyStore, cache domain.SnapshotCache, trigger Trigger, cfg Config, logger *slog.Logger) *Detector {
	return &Detector{
		store:   store,
		cache:   cache,
		trigger: trigger,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "detector")),
	}
}

func signatureKey(eventID string) string { return "snapsig:" + eventID }

// HandleSnapshot processes one refined snapshot. changed is false when the
// snapshot matched the last one seen for the event. When downstream handling
// fails the previous signature is put back so the change is retried on the
// next delivery.
func (d *Detector) HandleSnapshot(ctx context.Context, snap domain.GameSnapshot) (changed bool, err error) {
	if snap.EventID == "" {
		return false, domain.Invalidf("snapshot without event id")
	}
	sig := Signature(&snap)
	key := signatureKey(snap.EventID)

	prev, found, err := d.store.Swap(ctx, key, sig, d.cfg.SignatureTTL)
	if err != nil {
		return false, fmt.Errorf("detector: swap signature %s: %w", snap.EventID, err)
	}
	if found && prev == sig {
		d.logger.DebugContext(ctx, "snapshot unchanged", slog.String("event_id", snap.EventID))
		return false, nil
	}

	if err := d.process(ctx, snap); err != nil {
		// the caller's context may already be done; restore on a fresh one
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if rerr := d.store.Restore(rctx, key, sig, prev, found, d.cfg.SignatureTTL); rerr != nil {
			d.logger.ErrorContext(ctx, "restore signature failed",
				slog.String("event_id", snap.EventID),
				slog.String("error", rerr.Error()),
			)
		}
		return true, err
	}

	d.logger.InfoContext(ctx, "snapshot changed",
		slog.String("event_id", snap.EventID),
		slog.String("status", string(snap.Status)),
	)
	return true, nil
}

func (d *Detector) process(ctx context.Context, snap domain.GameSnapshot) error {
	if err := d.cache.Put(ctx, snap, d.cfg.SnapshotTTL); err != nil {
		return fmt.Errorf("detector: cache snapshot %s: %w", snap.EventID, err)
	}
	if err := d.trigger.EvaluateEligibleWagers(ctx, snap.EventID); err != nil {
		return fmt.Errorf("detector: evaluate %s: %w", snap.EventID, err)
	}
	return nil
}

// Handle adapts the detector to the source.Handler signature.
func (d *Detector) Handle(ctx context.Context, snap domain.GameSnapshot) error {
	_, err := d.HandleSnapshot(ctx, snap)
	return err
}
