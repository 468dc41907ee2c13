package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

const wagerColumns = `id, event_id, league, mode_key, config, status, close_time,
	winning_choice, wash_reason, resolved_at, created_at, updated_at`

// WagerStore implements domain.WagerStore using PostgreSQL.
type WagerStore struct {
	pool *pgxpool.Pool
}

// NewWagerStore creates a WagerStore backed by pool.
func NewWagerStore(pool *pgxpool.Pool) *WagerStore {
	return &WagerStore{pool: pool}
}

// Create inserts a new wager. It returns domain.ErrAlreadyExists on a
// duplicate id.
func (s *WagerStore) Create(ctx context.Context, w domain.Wager) error {
	cfg, err := json.Marshal(w.Config)
	if err != nil {
		return fmt.Errorf("postgres: marshal wager config %s: %w", w.ID, err)
	}
	if w.Status == "" {
		w.Status = domain.WagerActive
	}
	now := time.Now().UTC()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}

	const query = `
		INSERT INTO wagers (` + wagerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`
	_, err = s.pool.Exec(ctx, query,
		w.ID, w.EventID, string(w.League), w.ModeKey, cfg, string(w.Status), w.CloseTime,
		w.WinningChoice, w.WashReason, w.ResolvedAt, w.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("postgres: create wager %s: %w", w.ID, domain.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("postgres: create wager %s: %w", w.ID, err)
	}
	return nil
}

// GetByID returns the wager or domain.ErrNotFound.
func (s *WagerStore) GetByID(ctx context.Context, id string) (domain.Wager, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+wagerColumns+` FROM wagers WHERE id = $1`, id)
	w, err := scanWager(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Wager{}, fmt.Errorf("postgres: wager %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Wager{}, fmt.Errorf("postgres: get wager %s: %w", id, err)
	}
	return w, nil
}

// ListOpenByEvent implements domain.WagerStore.
func (s *WagerStore) ListOpenByEvent(ctx context.Context, eventID string) ([]domain.Wager, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+wagerColumns+` FROM wagers
		WHERE event_id = $1 AND status IN ('active', 'pending')
		ORDER BY created_at, id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list wagers for event %s: %w", eventID, err)
	}
	return collectWagers(rows)
}

// ListDueActive implements domain.WagerStore.
func (s *WagerStore) ListDueActive(ctx context.Context, now time.Time, limit int) ([]domain.Wager, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+wagerColumns+` FROM wagers
		WHERE status = 'active' AND close_time <= $1
		ORDER BY close_time, id
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list due wagers: %w", err)
	}
	return collectWagers(rows)
}

// MarkPending implements domain.WagerStore.
func (s *WagerStore) MarkPending(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE wagers SET status = 'pending', updated_at = $2
		WHERE id = $1 AND status = 'active'`, id, at)
	if err != nil {
		return false, fmt.Errorf("postgres: mark wager %s pending: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Resolve implements domain.WagerStore. The status update and history insert
// share one transaction.
func (s *WagerStore) Resolve(ctx context.Context, res domain.Resolution) (bool, error) {
	var choice, reason *string
	event := domain.HistoryWashed
	detail := map[string]any{"reason": res.Reason}
	switch res.Status {
	case domain.WagerResolved:
		choice = &res.Choice
		event = domain.HistoryResolved
		detail = map[string]any{"choice": res.Choice}
		if res.Reason != "" {
			detail["reason"] = res.Reason
		}
	case domain.WagerWashed:
		reason = &res.Reason
	default:
		return false, domain.Invalidf("resolution status %q is not terminal", res.Status)
	}
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return false, fmt.Errorf("postgres: marshal history detail: %w", err)
	}

	changed := false
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE wagers
			SET status = $2, winning_choice = $3, wash_reason = $4, resolved_at = $5, updated_at = $5
			WHERE id = $1 AND status = 'pending'`,
			res.WagerID, string(res.Status), choice, reason, res.ResolvedAt)
		if err != nil {
			return fmt.Errorf("update wager: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM wagers WHERE id = $1)`, res.WagerID).Scan(&exists); err != nil {
				return fmt.Errorf("check wager: %w", err)
			}
			if !exists {
				return domain.ErrNotFound
			}
			return nil
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO wager_history (id, wager_id, event, detail, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			uuid.NewString(), res.WagerID, event, detailJSON, res.ResolvedAt); err != nil {
			return fmt.Errorf("insert history: %w", err)
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("postgres: resolve wager %s: %w", res.WagerID, err)
	}
	return changed, nil
}

func scanWager(row pgx.Row) (domain.Wager, error) {
	var (
		w              domain.Wager
		league, status string
		cfg            []byte
	)
	err := row.Scan(&w.ID, &w.EventID, &league, &w.ModeKey, &cfg, &status, &w.CloseTime,
		&w.WinningChoice, &w.WashReason, &w.ResolvedAt, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return domain.Wager{}, err
	}
	w.League = domain.League(league)
	w.Status = domain.WagerStatus(status)
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &w.Config); err != nil {
			return domain.Wager{}, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	return w, nil
}

func collectWagers(rows pgx.Rows) ([]domain.Wager, error) {
	defer rows.Close()
	var out []domain.Wager
	for rows.Next() {
		w, err := scanWager(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan wager: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: wager rows: %w", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ domain.WagerStore = (*WagerStore)(nil)
