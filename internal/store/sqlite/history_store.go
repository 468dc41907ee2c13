package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

// HistoryStore implements domain.HistoryStore on SQLite.
type HistoryStore struct {
	db *sql.DB
}

// Append implements domain.HistoryStore.
func (s *HistoryStore) Append(ctx context.Context, rec domain.HistoryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	detail, err := json.Marshal(rec.Detail)
	if err != nil {
		return fmt.Errorf("sqlite: marshal history detail: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO wager_history (id, wager_id, event, detail, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.WagerID, rec.Event, string(detail), toNanos(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("sqlite: append history %s for %s: %w", rec.Event, rec.WagerID, err)
	}
	return nil
}

// ListByWager implements domain.HistoryStore, oldest first.
func (s *HistoryStore) ListByWager(ctx context.Context, wagerID string) ([]domain.HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, wager_id, event, detail, created_at
		FROM wager_history WHERE wager_id = ?
		ORDER BY created_at, seq`, wagerID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list history %s: %w", wagerID, err)
	}
	defer rows.Close()

	var out []domain.HistoryRecord
	for rows.Next() {
		var (
			rec     domain.HistoryRecord
			detail  sql.NullString
			created int64
		)
		if err := rows.Scan(&rec.ID, &rec.WagerID, &rec.Event, &detail, &created); err != nil {
			return nil, fmt.Errorf("sqlite: scan history: %w", err)
		}
		rec.CreatedAt = fromNanos(created)
		if detail.Valid && detail.String != "" {
			if err := json.Unmarshal([]byte(detail.String), &rec.Detail); err != nil {
				return nil, fmt.Errorf("sqlite: unmarshal history detail: %w", err)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: history rows: %w", err)
	}
	return out, nil
}

var _ domain.HistoryStore = (*HistoryStore)(nil)
