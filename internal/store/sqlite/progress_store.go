package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

// ProgressStore implements domain.ProgressStore on SQLite.
type ProgressStore struct {
	db *sql.DB
}

// Get implements domain.ProgressStore.
func (s *ProgressStore) Get(ctx context.Context, wagerID string) (domain.ProgressRecord, error) {
	var (
		parts    string
		decision sql.NullString
		updated  int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT participants, decision, updated_at FROM wager_progress WHERE wager_id = ?`, wagerID,
	).Scan(&parts, &decision, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ProgressRecord{}, fmt.Errorf("sqlite: progress %s: %w", wagerID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ProgressRecord{}, fmt.Errorf("sqlite: get progress %s: %w", wagerID, err)
	}
	p := domain.ProgressRecord{WagerID: wagerID, UpdatedAt: fromNanos(updated)}
	if err := json.Unmarshal([]byte(parts), &p.Participants); err != nil {
		return domain.ProgressRecord{}, fmt.Errorf("sqlite: unmarshal progress %s: %w", wagerID, err)
	}
	if decision.Valid {
		var d domain.FrozenDecision
		if err := json.Unmarshal([]byte(decision.String), &d); err != nil {
			return domain.ProgressRecord{}, fmt.Errorf("sqlite: unmarshal decision %s: %w", wagerID, err)
		}
		p.Decision = &d
	}
	return p, nil
}

// Save implements domain.ProgressStore.
func (s *ProgressStore) Save(ctx context.Context, p domain.ProgressRecord) error {
	parts, err := json.Marshal(p.Participants)
	if err != nil {
		return fmt.Errorf("sqlite: marshal progress %s: %w", p.WagerID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO wager_progress (wager_id, participants, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (wager_id) DO UPDATE
		SET participants = excluded.participants, updated_at = excluded.updated_at`,
		p.WagerID, string(parts), toNanos(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("sqlite: save progress %s: %w", p.WagerID, err)
	}
	return nil
}

// FreezeDecision implements domain.ProgressStore.
func (s *ProgressStore) FreezeDecision(ctx context.Context, wagerID string, d domain.FrozenDecision) (domain.FrozenDecision, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return domain.FrozenDecision{}, fmt.Errorf("sqlite: marshal decision %s: %w", wagerID, err)
	}
	var stored string
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO wager_progress (wager_id, participants, decision, updated_at)
		VALUES (?, '{}', ?, ?)
		ON CONFLICT (wager_id) DO UPDATE
		SET decision = COALESCE(wager_progress.decision, excluded.decision)
		RETURNING decision`,
		wagerID, string(raw), toNanos(d.DecidedAt),
	).Scan(&stored)
	if err != nil {
		return domain.FrozenDecision{}, fmt.Errorf("sqlite: freeze decision %s: %w", wagerID, err)
	}
	var out domain.FrozenDecision
	if err := json.Unmarshal([]byte(stored), &out); err != nil {
		return domain.FrozenDecision{}, fmt.Errorf("sqlite: unmarshal decision %s: %w", wagerID, err)
	}
	return out, nil
}

var _ domain.ProgressStore = (*ProgressStore)(nil)
