package domain

import (
	"context"
	"time"
)

// WagerStore persists wagers. Status transitions are conditional on the
// current status so concurrent writers cannot both succeed.
type WagerStore interface {
	Create(ctx context.Context, w Wager) error
	GetByID(ctx context.Context, id string) (Wager, error)
	// ListOpenByEvent returns active and pending wagers for an event.
	ListOpenByEvent(ctx context.Context, eventID string) ([]Wager, error)
	// ListDueActive returns active wagers whose close time is at or before now.
	ListDueActive(ctx context.Context, now time.Time, limit int) ([]Wager, error)
	// MarkPending moves an active wager to pending. changed is false when the
	// wager was no longer active.
	MarkPending(ctx context.Context, id string, at time.Time) (changed bool, err error)
	// Resolve moves a pending wager to its terminal status and appends the
	// matching history record in one transaction. changed is false when the
	// wager was no longer pending, in which case no history is written.
	Resolve(ctx context.Context, res Resolution) (changed bool, err error)
}

// HistoryStore persists an append-only per-wager audit trail.
type HistoryStore interface {
	Append(ctx context.Context, rec HistoryRecord) error
	ListByWager(ctx context.Context, wagerID string) ([]HistoryRecord, error)
}

// BaselineStore persists lock-time baselines.
type BaselineStore interface {
	// Save writes the baseline unless one already exists. created reports
	// whether this call wrote it.
	Save(ctx context.Context, b Baseline) (created bool, err error)
	Get(ctx context.Context, wagerID string) (Baseline, error)
}

// ProgressStore persists mutable per-wager evaluation state.
type ProgressStore interface {
	Get(ctx context.Context, wagerID string) (ProgressRecord, error)
	// Save upserts the participants. A frozen decision is left untouched.
	Save(ctx context.Context, p ProgressRecord) error
	// FreezeDecision stores d unless a decision is already stored, and
	// returns whichever decision is stored afterwards.
	FreezeDecision(ctx context.Context, wagerID string, d FrozenDecision) (FrozenDecision, error)
}
