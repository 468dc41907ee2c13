package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

// BaselineStore implements domain.BaselineStore on SQLite.
type BaselineStore struct {
	db *sql.DB
}

// Save implements domain.BaselineStore. Existing baselines are kept.
func (s *BaselineStore) Save(ctx context.Context, b domain.Baseline) (bool, error) {
	vals, err := json.Marshal(b.Values)
	if err != nil {
		return false, fmt.Errorf("sqlite: marshal baseline %s: %w", b.WagerID, err)
	}
	labels, err := json.Marshal(b.Labels)
	if err != nil {
		return false, fmt.Errorf("sqlite: marshal baseline labels %s: %w", b.WagerID, err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO wager_baselines (wager_id, vals, labels, captured_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (wager_id) DO NOTHING`,
		b.WagerID, string(vals), string(labels), toNanos(b.CapturedAt))
	if err != nil {
		return false, fmt.Errorf("sqlite: save baseline %s: %w", b.WagerID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: save baseline %s: %w", b.WagerID, err)
	}
	return n == 1, nil
}

// Get implements domain.BaselineStore.
func (s *BaselineStore) Get(ctx context.Context, wagerID string) (domain.Baseline, error) {
	var (
		vals, labels string
		captured     int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT vals, labels, captured_at FROM wager_baselines WHERE wager_id = ?`, wagerID,
	).Scan(&vals, &labels, &captured)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Baseline{}, fmt.Errorf("sqlite: baseline %s: %w", wagerID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Baseline{}, fmt.Errorf("sqlite: get baseline %s: %w", wagerID, err)
	}
	b := domain.Baseline{WagerID: wagerID, CapturedAt: fromNanos(captured)}
	if err := json.Unmarshal([]byte(vals), &b.Values); err != nil {
		return domain.Baseline{}, fmt.Errorf("sqlite: unmarshal baseline %s: %w", wagerID, err)
	}
	if labels != "" {
		if err := json.Unmarshal([]byte(labels), &b.Labels); err != nil {
			return domain.Baseline{}, fmt.Errorf("sqlite: unmarshal baseline labels %s: %w", wagerID, err)
		}
	}
	return b, nil
}

var _ domain.BaselineStore = (*BaselineStore)(nil)
