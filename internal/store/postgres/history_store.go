package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

// HistoryStore implements domain.HistoryStore using PostgreSQL.
type HistoryStore struct {
	pool *pgxpool.Pool
}

// NewHistoryStore creates a HistoryStore backed by pool.
func NewHistoryStore(pool *pgxpool.Pool) *HistoryStore {
	return &HistoryStore{pool: pool}
}

// Append adds rec to the wager's trail. Missing ids and timestamps are
// filled in.
func (s *HistoryStore) Append(ctx context.Context, rec domain.HistoryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	detail, err := json.Marshal(rec.Detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal history detail: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO wager_history (id, wager_id, event, detail, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.WagerID, rec.Event, detail, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: append history %s for %s: %w", rec.Event, rec.WagerID, err)
	}
	return nil
}

// ListByWager returns the trail oldest first.
func (s *HistoryStore) ListByWager(ctx context.Context, wagerID string) ([]domain.HistoryRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, wager_id, event, detail, created_at
		FROM wager_history WHERE wager_id = $1
		ORDER BY created_at, id`, wagerID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list history %s: %w", wagerID, err)
	}
	defer rows.Close()

	var out []domain.HistoryRecord
	for rows.Next() {
		var rec domain.HistoryRecord
		var detail []byte
		if err := rows.Scan(&rec.ID, &rec.WagerID, &rec.Event, &detail, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan history: %w", err)
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &rec.Detail); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal history detail: %w", err)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: history rows: %w", err)
	}
	return out, nil
}

var _ domain.HistoryStore = (*HistoryStore)(nil)
