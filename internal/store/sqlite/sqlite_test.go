package sqlite

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newWager(id, event string, closeAt time.Time) domain.Wager {
	return domain.Wager{
		ID:        id,
		EventID:   event,
		League:    domain.LeagueNFL,
		ModeKey:   "total_disaster",
		Config:    map[string]any{"line": 44.5},
		Status:    domain.WagerActive,
		CloseTime: closeAt,
	}
}

func TestWagerCreateAndGet(t *testing.T) {
	ctx := context.Background()
	ws := openTestDB(t).WagerStore()
	closeAt := time.Date(2026, 9, 13, 17, 0, 0, 0, time.UTC)

	require.NoError(t, ws.Create(ctx, newWager("w1", "401", closeAt)))
	err := ws.Create(ctx, newWager("w1", "401", closeAt))
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	w, err := ws.GetByID(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, domain.WagerActive, w.Status)
	assert.Equal(t, domain.LeagueNFL, w.League)
	assert.True(t, closeAt.Equal(w.CloseTime))
	assert.Equal(t, 44.5, w.Config["line"])
	assert.Nil(t, w.WinningChoice)

	_, err = ws.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListOpenAndDue(t *testing.T) {
	ctx := context.Background()
	ws := openTestDB(t).WagerStore()
	now := time.Date(2026, 9, 13, 17, 0, 0, 0, time.UTC)

	require.NoError(t, ws.Create(ctx, newWager("due", "401", now.Add(-time.Minute))))
	require.NoError(t, ws.Create(ctx, newWager("exact", "401", now)))
	require.NoError(t, ws.Create(ctx, newWager("later", "401", now.Add(time.Hour))))
	require.NoError(t, ws.Create(ctx, newWager("other", "402", now.Add(-time.Hour))))

	due, err := ws.ListDueActive(ctx, now, 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(due))
	for _, w := range due {
		ids = append(ids, w.ID)
	}
	assert.Equal(t, []string{"other", "due", "exact"}, ids)

	due, err = ws.ListDueActive(ctx, now, 1)
	require.NoError(t, err)
	assert.Len(t, due, 1)

	changed, err := ws.MarkPending(ctx, "due", now)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = ws.MarkPending(ctx, "due", now)
	require.NoError(t, err)
	assert.False(t, changed, "only active wagers lock")

	open, err := ws.ListOpenByEvent(ctx, "401")
	require.NoError(t, err)
	assert.Len(t, open, 3)

	_, err = ws.Resolve(ctx, domain.Resolution{WagerID: "due", Status: domain.WagerWashed, Reason: "push", ResolvedAt: now})
	require.NoError(t, err)
	open, err = ws.ListOpenByEvent(ctx, "401")
	require.NoError(t, err)
	assert.Len(t, open, 2, "terminal wagers are not open")
}

func TestResolveWritesHistoryOnce(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	ws, hs := db.WagerStore(), db.HistoryStore()
	now := time.Date(2026, 9, 13, 20, 0, 0, 0, time.UTC)

	require.NoError(t, ws.Create(ctx, newWager("w1", "401", now)))

	// active wagers cannot be resolved directly
	changed, err := ws.Resolve(ctx, domain.Resolution{WagerID: "w1", Status: domain.WagerResolved, Choice: "Over", ResolvedAt: now})
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = ws.MarkPending(ctx, "w1", now)
	require.NoError(t, err)
	changed, err = ws.Resolve(ctx, domain.Resolution{WagerID: "w1", Status: domain.WagerResolved, Choice: "Over", ResolvedAt: now})
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = ws.Resolve(ctx, domain.Resolution{WagerID: "w1", Status: domain.WagerWashed, Reason: "late", ResolvedAt: now})
	require.NoError(t, err)
	assert.False(t, changed)

	w, err := ws.GetByID(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, domain.WagerResolved, w.Status)
	require.NotNil(t, w.WinningChoice)
	assert.Equal(t, "Over", *w.WinningChoice)
	assert.Nil(t, w.WashReason)
	require.NotNil(t, w.ResolvedAt)

	hist, err := hs.ListByWager(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, domain.HistoryResolved, hist[0].Event)
	assert.Equal(t, "Over", hist[0].Detail["choice"])

	_, err = ws.Resolve(ctx, domain.Resolution{WagerID: "nope", Status: domain.WagerWashed, ResolvedAt: now})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = ws.Resolve(ctx, domain.Resolution{WagerID: "w1", Status: domain.WagerPending})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestConcurrentResolveHasOneWinner(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	ws, hs := db.WagerStore(), db.HistoryStore()
	now := time.Now().UTC()

	require.NoError(t, ws.Create(ctx, newWager("w1", "401", now)))
	_, err := ws.MarkPending(ctx, "w1", now)
	require.NoError(t, err)

	const writers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			choice := fmt.Sprintf("choice-%d", i)
			changed, err := ws.Resolve(ctx, domain.Resolution{
				WagerID: "w1", Status: domain.WagerResolved, Choice: choice, ResolvedAt: now,
			})
			assert.NoError(t, err)
			if changed {
				mu.Lock()
				winners = append(winners, choice)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, winners, 1)
	w, err := ws.GetByID(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, winners[0], *w.WinningChoice)

	hist, err := hs.ListByWager(ctx, "w1")
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestHistoryOrdering(t *testing.T) {
	ctx := context.Background()
	hs := openTestDB(t).HistoryStore()
	at := time.Date(2026, 9, 13, 18, 0, 0, 0, time.UTC)

	require.NoError(t, hs.Append(ctx, domain.HistoryRecord{WagerID: "w1", Event: domain.HistoryLocked, CreatedAt: at}))
	require.NoError(t, hs.Append(ctx, domain.HistoryRecord{
		WagerID: "w1", Event: domain.HistoryMilestone, CreatedAt: at,
		Detail: map[string]any{"participant": "p1"},
	}))
	require.NoError(t, hs.Append(ctx, domain.HistoryRecord{WagerID: "w2", Event: domain.HistoryLocked}))

	hist, err := hs.ListByWager(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, domain.HistoryLocked, hist[0].Event)
	assert.Equal(t, domain.HistoryMilestone, hist[1].Event)
	assert.Equal(t, "p1", hist[1].Detail["participant"])
	assert.NotEmpty(t, hist[0].ID)
}

func TestBaselineWriteOnce(t *testing.T) {
	ctx := context.Background()
	bs := openTestDB(t).BaselineStore()
	at := time.Date(2026, 9, 13, 17, 0, 0, 0, time.UTC)

	_, err := bs.Get(ctx, "w1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	created, err := bs.Save(ctx, domain.Baseline{
		WagerID: "w1", Values: map[string]float64{"player:12": 40},
		Labels: map[string]string{"possession": "KC"}, CapturedAt: at,
	})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = bs.Save(ctx, domain.Baseline{WagerID: "w1", Values: map[string]float64{"player:12": 99}, CapturedAt: at})
	require.NoError(t, err)
	assert.False(t, created)

	b, err := bs.Get(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, 40.0, b.Values["player:12"])
	assert.Equal(t, "KC", b.Labels["possession"])
	assert.True(t, at.Equal(b.CapturedAt))
}

func TestProgressUpsert(t *testing.T) {
	ctx := context.Background()
	ps := openTestDB(t).ProgressStore()
	at := time.Date(2026, 9, 13, 18, 0, 0, 0, time.UTC)

	_, err := ps.Get(ctx, "w1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, ps.Save(ctx, domain.ProgressRecord{
		WagerID:      "w1",
		Participants: map[string]domain.ParticipantProgress{"p1": {Baseline: 10, LastValue: 12}},
		UpdatedAt:    at,
	}))
	reached := at.Add(time.Minute)
	require.NoError(t, ps.Save(ctx, domain.ProgressRecord{
		WagerID: "w1",
		Participants: map[string]domain.ParticipantProgress{
			"p1": {Baseline: 10, LastValue: 30, Reached: true, ReachedAt: &reached, ValueAtReach: 30},
		},
		UpdatedAt: reached,
	}))

	p, err := ps.Get(ctx, "w1")
	require.NoError(t, err)
	assert.True(t, p.Participants["p1"].Reached)
	require.NotNil(t, p.Participants["p1"].ReachedAt)
	assert.True(t, reached.Equal(*p.Participants["p1"].ReachedAt))
	assert.True(t, reached.Equal(p.UpdatedAt))
}

func TestFreezeDecisionKeepsFirst(t *testing.T) {
	ctx := context.Background()
	ps := openTestDB(t).ProgressStore()
	at := time.Date(2026, 9, 13, 18, 0, 0, 0, time.UTC)

	first := domain.FrozenDecision{Decision: "winner", Choice: "KC", Reason: "KC scored next", DecidedAt: at}
	got, err := ps.FreezeDecision(ctx, "w1", first)
	require.NoError(t, err)
	assert.Equal(t, "KC", got.Choice)

	got, err = ps.FreezeDecision(ctx, "w1", domain.FrozenDecision{Decision: "wash", Reason: "simultaneous scoring", DecidedAt: at.Add(time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, "winner", got.Decision)
	assert.Equal(t, "KC", got.Choice)

	// participant upserts leave the decision alone
	require.NoError(t, ps.Save(ctx, domain.ProgressRecord{
		WagerID:      "w1",
		Participants: map[string]domain.ParticipantProgress{"p1": {LastValue: 3}},
		UpdatedAt:    at.Add(2 * time.Minute),
	}))
	p, err := ps.Get(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, p.Decision)
	assert.Equal(t, "KC scored next", p.Decision.Reason)
	assert.True(t, at.Equal(p.Decision.DecidedAt))
	assert.Equal(t, 3.0, p.Participants["p1"].LastValue)
}
