package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

const wagerColumns = `id, event_id, league, mode_key, config, status, close_time,
	winning_choice, wash_reason, resolved_at, created_at, updated_at`

// WagerStore implements domain.WagerStore on SQLite.
type WagerStore struct {
	db *sql.DB
}

// Create implements domain.WagerStore.
func (s *WagerStore) Create(ctx context.Context, w domain.Wager) error {
	cfg, err := json.Marshal(w.Config)
	if err != nil {
		return fmt.Errorf("sqlite: marshal wager config %s: %w", w.ID, err)
	}
	if w.Status == "" {
		w.Status = domain.WagerActive
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO wagers (`+wagerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.EventID, string(w.League), w.ModeKey, string(cfg), string(w.Status),
		toNanos(w.CloseTime), w.WinningChoice, w.WashReason, nullableNanos(w.ResolvedAt),
		toNanos(w.CreatedAt), toNanos(w.CreatedAt),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("sqlite: create wager %s: %w", w.ID, domain.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("sqlite: create wager %s: %w", w.ID, err)
	}
	return nil
}

// GetByID implements domain.WagerStore.
func (s *WagerStore) GetByID(ctx context.Context, id string) (domain.Wager, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+wagerColumns+` FROM wagers WHERE id = ?`, id)
	w, err := scanWager(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Wager{}, fmt.Errorf("sqlite: wager %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Wager{}, fmt.Errorf("sqlite: get wager %s: %w", id, err)
	}
	return w, nil
}

// ListOpenByEvent implements domain.WagerStore.
func (s *WagerStore) ListOpenByEvent(ctx context.Context, eventID string) ([]domain.Wager, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+wagerColumns+` FROM wagers
		WHERE event_id = ? AND status IN ('active', 'pending')
		ORDER BY created_at, id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list wagers for event %s: %w", eventID, err)
	}
	return collectWagers(rows)
}

// ListDueActive implements domain.WagerStore.
func (s *WagerStore) ListDueActive(ctx context.Context, now time.Time, limit int) ([]domain.Wager, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+wagerColumns+` FROM wagers
		WHERE status = 'active' AND close_time <= ?
		ORDER BY close_time, id
		LIMIT ?`, toNanos(now), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list due wagers: %w", err)
	}
	return collectWagers(rows)
}

// MarkPending implements domain.WagerStore.
func (s *WagerStore) MarkPending(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE wagers SET status = 'pending', updated_at = ?
		WHERE id = ? AND status = 'active'`, toNanos(at), id)
	if err != nil {
		return false, fmt.Errorf("sqlite: mark wager %s pending: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: mark wager %s pending: %w", id, err)
	}
	return n == 1, nil
}

// Resolve implements domain.WagerStore.
func (s *WagerStore) Resolve(ctx context.Context, r domain.Resolution) (bool, error) {
	var choice, reason *string
	event := domain.HistoryWashed
	detail := map[string]any{"reason": r.Reason}
	switch r.Status {
	case domain.WagerResolved:
		choice = &r.Choice
		event = domain.HistoryResolved
		detail = map[string]any{"choice": r.Choice}
		if r.Reason != "" {
			detail["reason"] = r.Reason
		}
	case domain.WagerWashed:
		reason = &r.Reason
	default:
		return false, domain.Invalidf("resolution status %q is not terminal", r.Status)
	}
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return false, fmt.Errorf("sqlite: marshal history detail: %w", err)
	}

	changed := false
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE wagers
			SET status = ?, winning_choice = ?, wash_reason = ?, resolved_at = ?, updated_at = ?
			WHERE id = ? AND status = 'pending'`,
			string(r.Status), choice, reason, toNanos(r.ResolvedAt), toNanos(r.ResolvedAt), r.WagerID)
		if err != nil {
			return fmt.Errorf("update wager: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update wager: %w", err)
		}
		if n == 0 {
			var one int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM wagers WHERE id = ?`, r.WagerID).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrNotFound
			}
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO wager_history (id, wager_id, event, detail, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			uuid.NewString(), r.WagerID, event, string(detailJSON), toNanos(r.ResolvedAt)); err != nil {
			return fmt.Errorf("insert history: %w", err)
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("sqlite: resolve wager %s: %w", r.WagerID, err)
	}
	return changed, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWager(row scanner) (domain.Wager, error) {
	var (
		w                         domain.Wager
		league, status, cfg       string
		choice, reason            sql.NullString
		closeAt, created, updated int64
		resolved                  sql.NullInt64
	)
	err := row.Scan(&w.ID, &w.EventID, &league, &w.ModeKey, &cfg, &status, &closeAt,
		&choice, &reason, &resolved, &created, &updated)
	if err != nil {
		return domain.Wager{}, err
	}
	w.League = domain.League(league)
	w.Status = domain.WagerStatus(status)
	w.CloseTime = fromNanos(closeAt)
	w.CreatedAt = fromNanos(created)
	w.UpdatedAt = fromNanos(updated)
	if choice.Valid {
		w.WinningChoice = &choice.String
	}
	if reason.Valid {
		w.WashReason = &reason.String
	}
	if resolved.Valid {
		t := fromNanos(resolved.Int64)
		w.ResolvedAt = &t
	}
	if cfg != "" {
		if err := json.Unmarshal([]byte(cfg), &w.Config); err != nil {
			return domain.Wager{}, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	return w, nil
}

func collectWagers(rows *sql.Rows) ([]domain.Wager, error) {
	defer rows.Close()
	var out []domain.Wager
	for rows.Next() {
		w, err := scanWager(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan wager: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: wager rows: %w", err)
	}
	return out, nil
}

var _ domain.WagerStore = (*WagerStore)(nil)
