package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

// ProgressStore implements domain.ProgressStore using PostgreSQL.
type ProgressStore struct {
	pool *pgxpool.Pool
}

// NewProgressStore creates a ProgressStore backed by pool.
func NewProgressStore(pool *pgxpool.Pool) *ProgressStore {
	return &ProgressStore{pool: pool}
}

// Get returns the progress record or domain.ErrNotFound.
func (s *ProgressStore) Get(ctx context.Context, wagerID string) (domain.ProgressRecord, error) {
	p := domain.ProgressRecord{WagerID: wagerID}
	var parts, decision []byte
	err := s.pool.QueryRow(ctx, `
		SELECT participants, decision, updated_at FROM wager_progress WHERE wager_id = $1`, wagerID,
	).Scan(&parts, &decision, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ProgressRecord{}, fmt.Errorf("postgres: progress %s: %w", wagerID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ProgressRecord{}, fmt.Errorf("postgres: get progress %s: %w", wagerID, err)
	}
	if err := json.Unmarshal(parts, &p.Participants); err != nil {
		return domain.ProgressRecord{}, fmt.Errorf("postgres: unmarshal progress %s: %w", wagerID, err)
	}
	if decision != nil {
		var d domain.FrozenDecision
		if err := json.Unmarshal(decision, &d); err != nil {
			return domain.ProgressRecord{}, fmt.Errorf("postgres: unmarshal decision %s: %w", wagerID, err)
		}
		p.Decision = &d
	}
	return p, nil
}

// Save upserts the participants of p. The frozen decision column is never
// written here.
func (s *ProgressStore) Save(ctx context.Context, p domain.ProgressRecord) error {
	parts, err := json.Marshal(p.Participants)
	if err != nil {
		return fmt.Errorf("postgres: marshal progress %s: %w", p.WagerID, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO wager_progress (wager_id, participants, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (wager_id) DO UPDATE
		SET participants = EXCLUDED.participants, updated_at = EXCLUDED.updated_at`,
		p.WagerID, parts, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: save progress %s: %w", p.WagerID, err)
	}
	return nil
}

// FreezeDecision stores d only when no decision exists yet and returns the
// stored one.
func (s *ProgressStore) FreezeDecision(ctx context.Context, wagerID string, d domain.FrozenDecision) (domain.FrozenDecision, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return domain.FrozenDecision{}, fmt.Errorf("postgres: marshal decision %s: %w", wagerID, err)
	}
	var stored []byte
	err = s.pool.QueryRow(ctx, `
		INSERT INTO wager_progress (wager_id, participants, decision, updated_at)
		VALUES ($1, '{}'::jsonb, $2, $3)
		ON CONFLICT (wager_id) DO UPDATE
		SET decision = COALESCE(wager_progress.decision, EXCLUDED.decision)
		RETURNING decision`,
		wagerID, raw, d.DecidedAt,
	).Scan(&stored)
	if err != nil {
		return domain.FrozenDecision{}, fmt.Errorf("postgres: freeze decision %s: %w", wagerID, err)
	}
	var out domain.FrozenDecision
	if err := json.Unmarshal(stored, &out); err != nil {
		return domain.FrozenDecision{}, fmt.Errorf("postgres: unmarshal decision %s: %w", wagerID, err)
	}
	return out, nil
}

var _ domain.ProgressStore = (*ProgressStore)(nil)
