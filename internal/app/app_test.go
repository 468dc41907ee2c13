package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/betresolver/internal/config"
	"github.com/alanyoungcy/betresolver/internal/domain"
)

func localConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Store.Driver = "sqlite"
	cfg.SQLite.Path = ":memory:"
	cfg.Redis.Enabled = false
	cfg.Server.Enabled = false
	return &cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWireLocalBackends(t *testing.T) {
	cfg := localConfig()
	deps, cleanup, err := Wire(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.False(t, deps.Shared)
	assert.Nil(t, deps.BlobReader)
	assert.Nil(t, deps.Evidence)
	assert.Contains(t, deps.Checks, "sqlite")
	require.NoError(t, deps.Checks["sqlite"].Ping(context.Background()))
	assert.False(t, deps.Notifier.Enabled())
}

func TestWireRejectsUnknownDriver(t *testing.T) {
	cfg := localConfig()
	cfg.Store.Driver = "mongo"
	_, _, err := Wire(context.Background(), cfg, testLogger())
	assert.Error(t, err)
}

func TestBuildSources(t *testing.T) {
	cfg := localConfig()
	a := New(cfg, testLogger())
	deps, cleanup, err := Wire(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, 0, a.buildSources(deps).Len())

	cfg.Sources.BusChannel = "snapshots.refined"
	cfg.Sources.WebSocketURL = "ws://localhost:9/refined"
	// S3 enabled without a reader is skipped
	cfg.Sources.S3Enabled = true
	assert.Equal(t, 2, a.buildSources(deps).Len())
}

func TestCoreEvaluatesThroughDetector(t *testing.T) {
	cfg := localConfig()
	a := New(cfg, testLogger())
	deps, cleanup, err := Wire(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()

	ctx := context.Background()
	c := a.buildCore(deps)

	now := time.Now().UTC()
	require.NoError(t, deps.Wagers.Create(ctx, domain.Wager{
		ID:        "w1",
		EventID:   "401",
		League:    domain.LeagueNFL,
		ModeKey:   "total_disaster",
		Config:    map[string]any{"line": 40.5},
		Status:    domain.WagerActive,
		CloseTime: now.Add(-time.Minute),
	}))

	snap := domain.GameSnapshot{
		EventID: "401",
		Status:  domain.StatusFinal,
		Teams: []domain.TeamLine{
			{TeamID: "1", Abbreviation: "LV", Score: 24},
			{TeamID: "2", Abbreviation: "KC", Score: 21},
		},
	}
	changed, err := c.detector.HandleSnapshot(ctx, snap)
	require.NoError(t, err)
	assert.True(t, changed)

	counts, err := c.queue.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Waiting)

	// same snapshot again is a no-op
	changed, err = c.detector.HandleSnapshot(ctx, snap)
	require.NoError(t, err)
	assert.False(t, changed)
}
