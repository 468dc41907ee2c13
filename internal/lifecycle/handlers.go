package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

// RegisterHandlers installs the set_winner, wash and record_history job
// handlers on r.
func (s *Service) RegisterHandlers(r HandlerRegistry) {
	r.Handle(domain.JobSetWinner, s.handleSetWinner)
	r.Handle(domain.JobWash, s.handleWash)
	r.Handle(domain.JobRecordHistory, s.handleRecordHistory)
}

func (s *Service) handleSetWinner(ctx context.Context, job domain.ResolutionJob) error {
	choice := job.Payload[domain.PayloadChoice]
	if choice == "" {
		return domain.Invalidf("set_winner job %s has no choice", job.Key)
	}
	return s.apply(ctx, domain.Resolution{
		WagerID:    job.WagerID,
		Status:     domain.WagerResolved,
		Choice:     choice,
		Reason:     job.Payload[domain.PayloadReason],
		ResolvedAt: s.now(),
	})
}

func (s *Service) handleWash(ctx context.Context, job domain.ResolutionJob) error {
	reason := job.Payload[domain.PayloadReason]
	if reason == "" {
		reason = "washed"
	}
	return s.apply(ctx, domain.Resolution{
		WagerID:    job.WagerID,
		Status:     domain.WagerWashed,
		Reason:     reason,
		ResolvedAt: s.now(),
	})
}

func (s *Service) handleRecordHistory(ctx context.Context, job domain.ResolutionJob) error {
	event := job.Payload[domain.PayloadEvent]
	if event == "" {
		event = domain.HistoryMilestone
	}
	var detail map[string]any
	if raw := job.Payload[domain.PayloadDetail]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &detail); err != nil {
			return domain.Invalidf("record_history job %s: bad detail: %v", job.Key, err)
		}
	}
	if err := s.deps.History.Append(ctx, domain.HistoryRecord{
		WagerID:   job.WagerID,
		Event:     event,
		Detail:    detail,
		CreatedAt: s.now(),
	}); err != nil {
		return fmt.Errorf("lifecycle: record history %s: %w", job.WagerID, err)
	}
	return nil
}

// apply performs the conditional pending -> terminal transition. Losing the
// race to another writer is not an error.
func (s *Service) apply(ctx context.Context, res domain.Resolution) error {
	changed, err := s.deps.Wagers.Resolve(ctx, res)
	if err != nil {
		return fmt.Errorf("lifecycle: resolve %s: %w", res.WagerID, err)
	}
	logger := s.logger.With(
		slog.String("wager_id", res.WagerID),
		slog.String("status", string(res.Status)),
	)
	if !changed {
		logger.InfoContext(ctx, "wager no longer pending, outcome dropped")
		return nil
	}
	logger.InfoContext(ctx, "wager resolved",
		slog.String("choice", res.Choice),
		slog.String("reason", res.Reason),
	)

	// The transition is committed. Side effects below are best effort:
	// a retry could not redo them because Resolve would report no change.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	s.announce(sctx, logger, res)
	return nil
}

func (s *Service) announce(ctx context.Context, logger *slog.Logger, res domain.Resolution) {
	ev := domain.ResolutionEvent{
		WagerID:    res.WagerID,
		Status:     res.Status,
		Choice:     res.Choice,
		Reason:     res.Reason,
		ResolvedAt: res.ResolvedAt,
	}
	w, err := s.deps.Wagers.GetByID(ctx, res.WagerID)
	if err != nil {
		logger.WarnContext(ctx, "resolved wager not readable", slog.String("error", err.Error()))
	} else {
		ev.EventID = w.EventID
		ev.ModeKey = w.ModeKey
	}

	if s.deps.Bus != nil {
		payload, err := json.Marshal(ev)
		if err == nil {
			err = s.deps.Bus.Publish(ctx, domain.ChannelWagerResolved, payload)
		}
		if err != nil {
			logger.WarnContext(ctx, "resolution event not published", slog.String("error", err.Error()))
		}
	}
	if s.deps.Announcer != nil {
		if err := s.deps.Announcer.WagerResolved(ctx, ev); err != nil {
			logger.WarnContext(ctx, "resolution not announced", slog.String("error", err.Error()))
		}
	}
	if s.deps.Evidence != nil && ev.EventID != "" {
		snap, err := s.deps.Snapshots.Snapshot(ctx, ev.EventID)
		if err == nil {
			err = s.deps.Evidence.Archive(ctx, res, snap)
		}
		if err != nil {
			logger.WarnContext(ctx, "evidence not archived", slog.String("error", err.Error()))
		}
	}
}
