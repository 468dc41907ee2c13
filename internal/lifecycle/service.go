// Package lifecycle drives wagers through active -> pending -> resolved or
// washed. Evaluation decides outcomes; the job queue applies them through
// conditional store updates so concurrent evaluators cannot both win.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/betresolver/internal/domain"
	"github.com/alanyoungcy/betresolver/internal/modes"
	"github.com/alanyoungcy/betresolver/internal/queue"
)

// SnapshotProvider returns the newest snapshot for an event. It returns an
// error wrapping domain.ErrUnavailable when upstream is shedding load.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, eventID string) (domain.GameSnapshot, error)
}

// Enqueuer accepts resolution jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job domain.ResolutionJob) (bool, error)
}

// Announcer is told about every wager that reaches a terminal status.
type Announcer interface {
	WagerResolved(ctx context.Context, ev domain.ResolutionEvent) error
}

// HandlerRegistry is where the service registers its job handlers.
type HandlerRegistry interface {
	Handle(t domain.JobType, h queue.Handler)
}

// Deps are the collaborators of a Service. Bus, Locks, Evidence and
// Announcer are optional.
type Deps struct {
	Wagers    domain.WagerStore
	History   domain.HistoryStore
	Baselines domain.BaselineStore
	Progress  domain.ProgressStore
	Snapshots SnapshotProvider
	Jobs      Enqueuer
	Registry  *modes.Registry
	Bus       domain.SignalBus
	Locks     domain.LockManager
	Evidence  domain.EvidenceArchiver
	Announcer Announcer
}

// Config tunes the close-time sweep.
type Config struct {
	SweepInterval time.Duration
	SweepBatch    int
}

// Service implements the wager lifecycle.
type Service struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Service.
func New(deps Deps, cfg Config, logger *slog.Logger) *Service {
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = 200
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	return &Service{
		deps:   deps,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "lifecycle")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// EvaluateEligibleWagers locks and evaluates the open wagers of eventID
// against its newest snapshot. A failure for one wager does not stop the
// others; the joined error is returned so the caller can retry the event.
func (s *Service) EvaluateEligibleWagers(ctx context.Context, eventID string) error {
	snap, err := s.deps.Snapshots.Snapshot(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrUnavailable) {
			s.logger.WarnContext(ctx, "snapshot unavailable, deferring evaluation",
				slog.String("event_id", eventID),
				slog.String("error", err.Error()),
			)
		}
		return fmt.Errorf("lifecycle: snapshot for %s: %w", eventID, err)
	}

	wagers, err := s.deps.Wagers.ListOpenByEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("lifecycle: list wagers for %s: %w", eventID, err)
	}

	now := s.now()
	var errs []error
	for _, w := range wagers {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.evaluateWager(ctx, w, &snap, now); err != nil {
			s.logger.ErrorContext(ctx, "wager evaluation failed",
				slog.String("wager_id", w.ID),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("wager %s: %w", w.ID, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("lifecycle: evaluate %s: %w", eventID, errors.Join(errs...))
	}
	return nil
}

func (s *Service) evaluateWager(ctx context.Context, w domain.Wager, snap *domain.GameSnapshot, now time.Time) error {
	mode, lookupErr := s.deps.Registry.Lookup(w.League, w.ModeKey)

	if w.Status == domain.WagerActive {
		due := !now.Before(w.CloseTime) || snap.Status.Final()
		if !due && lookupErr == nil {
			return nil
		}
		locked, washReason, err := s.lock(ctx, w, mode, snap, now)
		if err != nil {
			return err
		}
		if !locked {
			// another process locked it and owns the baseline write
			return nil
		}
		w.Status = domain.WagerPending
		if washReason != "" {
			return s.enqueueWash(ctx, w.ID, washReason)
		}
	}

	if lookupErr != nil {
		return s.enqueueWash(ctx, w.ID, lookupErr.Error())
	}
	if w.Status != domain.WagerPending {
		return nil
	}
	ev, ok := mode.(modes.Evaluator)
	if !ok {
		// manual modes wait for a participant's submission
		return nil
	}

	in := modes.EvalInput{Wager: w, Snapshot: snap, Now: now}
	if _, ok := mode.(modes.Preparer); ok {
		b, err := s.deps.Baselines.Get(ctx, w.ID)
		switch {
		case err == nil:
			in.Baseline = &b
		case !errors.Is(err, domain.ErrNotFound):
			return fmt.Errorf("load baseline: %w", err)
		}
	}
	p, err := s.deps.Progress.Get(ctx, w.ID)
	switch {
	case err == nil:
		in.Progress = &p
	case !errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("load progress: %w", err)
	}
	if in.Progress != nil && in.Progress.Decision != nil {
		// decided earlier; resubmit that verdict until a job applies it
		return s.enqueueDecision(ctx, w, *in.Progress.Decision)
	}

	out, err := ev.Evaluate(ctx, in)
	if err != nil {
		if reason, ok := domain.ValidationReason(err); ok {
			return s.decide(ctx, w, domain.FrozenDecision{Decision: decisionWash, Reason: reason, DecidedAt: now})
		}
		return fmt.Errorf("evaluate %s: %w", w.ModeKey, err)
	}

	if out.Progress != nil {
		out.Progress.WagerID = w.ID
		if out.Progress.UpdatedAt.IsZero() {
			out.Progress.UpdatedAt = now
		}
		if err := s.deps.Progress.Save(ctx, *out.Progress); err != nil {
			return fmt.Errorf("save progress: %w", err)
		}
	}
	for _, m := range out.Milestones {
		if err := s.enqueueMilestone(ctx, w.ID, m); err != nil {
			return err
		}
	}

	switch out.Decision {
	case modes.Winner:
		return s.decide(ctx, w, domain.FrozenDecision{Decision: decisionWinner, Choice: out.Choice, Reason: out.Reason, DecidedAt: now})
	case modes.Wash:
		return s.decide(ctx, w, domain.FrozenDecision{Decision: decisionWash, Reason: out.Reason, DecidedAt: now})
	}
	return nil
}

const (
	decisionWinner = "winner"
	decisionWash   = "wash"
)

// decide freezes d as the wager's verdict and enqueues whichever verdict was
// frozen first. A later snapshot can only repeat that verdict.
func (s *Service) decide(ctx context.Context, w domain.Wager, d domain.FrozenDecision) error {
	stored, err := s.deps.Progress.FreezeDecision(ctx, w.ID, d)
	if err != nil {
		return fmt.Errorf("freeze decision: %w", err)
	}
	if stored.Decision != d.Decision || stored.Choice != d.Choice || stored.Reason != d.Reason {
		s.logger.InfoContext(ctx, "keeping earlier decision",
			slog.String("wager_id", w.ID),
			slog.String("decision", stored.Decision),
			slog.String("ignored", d.Decision+": "+d.Reason),
		)
	}
	return s.enqueueDecision(ctx, w, stored)
}

func (s *Service) enqueueDecision(ctx context.Context, w domain.Wager, d domain.FrozenDecision) error {
	if d.Decision != decisionWinner {
		return s.enqueueWash(ctx, w.ID, d.Reason)
	}
	s.logger.InfoContext(ctx, "wager decided",
		slog.String("wager_id", w.ID),
		slog.String("mode", w.ModeKey),
		slog.String("choice", d.Choice),
	)
	return s.enqueue(ctx, domain.ResolutionJob{
		Type:    domain.JobSetWinner,
		WagerID: w.ID,
		Payload: map[string]string{domain.PayloadChoice: d.Choice, domain.PayloadReason: d.Reason},
	})
}

// lock moves w to pending and captures its baseline. locked is false when
// another writer moved it first. washReason is set when the baseline cannot
// be captured from snap.
func (s *Service) lock(ctx context.Context, w domain.Wager, mode modes.Mode, snap *domain.GameSnapshot, now time.Time) (locked bool, washReason string, err error) {
	var baseline *domain.Baseline
	if p, ok := mode.(modes.Preparer); ok {
		b, err := p.CaptureBaseline(w, snap, now)
		if err != nil {
			reason, ok := domain.ValidationReason(err)
			if !ok {
				return false, "", fmt.Errorf("capture baseline: %w", err)
			}
			washReason = reason
		} else {
			b.WagerID = w.ID
			if b.CapturedAt.IsZero() {
				b.CapturedAt = now
			}
			baseline = &b
		}
	}

	// Baseline first: a pending wager always has one. Saves are write-once,
	// so a racing locker keeps whichever baseline landed first.
	if baseline != nil {
		if _, err := s.deps.Baselines.Save(ctx, *baseline); err != nil {
			return false, "", fmt.Errorf("save baseline: %w", err)
		}
	}
	changed, err := s.deps.Wagers.MarkPending(ctx, w.ID, now)
	if err != nil {
		return false, "", fmt.Errorf("mark pending: %w", err)
	}
	if !changed {
		return false, "", nil
	}

	detail := map[string]any{"close_time": w.CloseTime.Format(time.RFC3339)}
	if snap != nil {
		detail["game_status"] = string(snap.Status)
	}
	if err := s.deps.History.Append(ctx, domain.HistoryRecord{
		WagerID: w.ID, Event: domain.HistoryLocked, Detail: detail, CreatedAt: now,
	}); err != nil {
		s.logger.WarnContext(ctx, "lock history not recorded",
			slog.String("wager_id", w.ID),
			slog.String("error", err.Error()),
		)
	}
	s.logger.InfoContext(ctx, "wager locked", slog.String("wager_id", w.ID))
	return true, washReason, nil
}

func (s *Service) enqueue(ctx context.Context, job domain.ResolutionJob) error {
	added, err := s.deps.Jobs.Enqueue(ctx, job)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", job.Type, err)
	}
	if !added {
		s.logger.DebugContext(ctx, "job already queued",
			slog.String("wager_id", job.WagerID),
			slog.String("type", string(job.Type)),
		)
	}
	return nil
}

func (s *Service) enqueueWash(ctx context.Context, wagerID, reason string) error {
	s.logger.InfoContext(ctx, "wager washing",
		slog.String("wager_id", wagerID),
		slog.String("reason", reason),
	)
	return s.enqueue(ctx, domain.ResolutionJob{
		Type:    domain.JobWash,
		WagerID: wagerID,
		Payload: map[string]string{domain.PayloadReason: reason},
	})
}

func (s *Service) enqueueMilestone(ctx context.Context, wagerID string, m modes.Milestone) error {
	detail, err := json.Marshal(m.Detail)
	if err != nil {
		return fmt.Errorf("marshal milestone: %w", err)
	}
	// one job per milestone and participant so distinct milestones never
	// collapse onto each other
	key := fmt.Sprintf("%s:%s:%v", domain.JobKey(wagerID, domain.JobRecordHistory), m.Event, m.Detail["player"])
	return s.enqueue(ctx, domain.ResolutionJob{
		Key:     key,
		Type:    domain.JobRecordHistory,
		WagerID: wagerID,
		Payload: map[string]string{domain.PayloadEvent: m.Event, domain.PayloadDetail: string(detail)},
	})
}
