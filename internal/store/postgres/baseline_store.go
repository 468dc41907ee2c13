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

// BaselineStore implements domain.BaselineStore using PostgreSQL.
type BaselineStore struct {
	pool *pgxpool.Pool
}

// NewBaselineStore creates a BaselineStore backed by pool.
func NewBaselineStore(pool *pgxpool.Pool) *BaselineStore {
	return &BaselineStore{pool: pool}
}

// Save writes b once. A second save for the same wager is ignored.
func (s *BaselineStore) Save(ctx context.Context, b domain.Baseline) (bool, error) {
	vals, err := json.Marshal(b.Values)
	if err != nil {
		return false, fmt.Errorf("postgres: marshal baseline %s: %w", b.WagerID, err)
	}
	labels, err := json.Marshal(b.Labels)
	if err != nil {
		return false, fmt.Errorf("postgres: marshal baseline labels %s: %w", b.WagerID, err)
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO wager_baselines (wager_id, vals, labels, captured_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (wager_id) DO NOTHING`,
		b.WagerID, vals, labels, b.CapturedAt)
	if err != nil {
		return false, fmt.Errorf("postgres: save baseline %s: %w", b.WagerID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Get returns the baseline or domain.ErrNotFound.
func (s *BaselineStore) Get(ctx context.Context, wagerID string) (domain.Baseline, error) {
	var (
		b            = domain.Baseline{WagerID: wagerID}
		vals, labels []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT vals, labels, captured_at FROM wager_baselines WHERE wager_id = $1`, wagerID,
	).Scan(&vals, &labels, &b.CapturedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Baseline{}, fmt.Errorf("postgres: baseline %s: %w", wagerID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Baseline{}, fmt.Errorf("postgres: get baseline %s: %w", wagerID, err)
	}
	if err := json.Unmarshal(vals, &b.Values); err != nil {
		return domain.Baseline{}, fmt.Errorf("postgres: unmarshal baseline %s: %w", wagerID, err)
	}
	if len(labels) > 0 {
		if err := json.Unmarshal(labels, &b.Labels); err != nil {
			return domain.Baseline{}, fmt.Errorf("postgres: unmarshal baseline labels %s: %w", wagerID, err)
		}
	}
	return b, nil
}

var _ domain.BaselineStore = (*BaselineStore)(nil)
