package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/betresolver/internal/breaker"
	"github.com/alanyoungcy/betresolver/internal/cache/memory"
	"github.com/alanyoungcy/betresolver/internal/domain"
	"github.com/alanyoungcy/betresolver/internal/lifecycle"
	"github.com/alanyoungcy/betresolver/internal/modes"
	"github.com/alanyoungcy/betresolver/internal/queue"
	"github.com/alanyoungcy/betresolver/internal/server/handler"
	"github.com/alanyoungcy/betresolver/internal/server/ws"
)

const testKey = "secret"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeLifecycle struct {
	evaluated []string
	evalErr   error
	verdicts  map[string]string
	verdErr   error
	registry  *modes.Registry
}

func (f *fakeLifecycle) EvaluateEligibleWagers(_ context.Context, eventID string) error {
	f.evaluated = append(f.evaluated, eventID)
	return f.evalErr
}

func (f *fakeLifecycle) SubmitManualValidation(_ context.Context, wagerID, choice string) error {
	if f.verdErr != nil {
		return f.verdErr
	}
	f.verdicts[wagerID] = choice
	return nil
}

func (f *fakeLifecycle) GetModeOverview(league domain.League, key string) (modes.Overview, error) {
	m, err := f.registry.Lookup(league, key)
	if err != nil {
		return modes.Overview{}, err
	}
	return modes.OverviewOf(m), nil
}

func (f *fakeLifecycle) ListSupportedModes(league domain.League) []modes.Overview {
	var out []modes.Overview
	for _, m := range f.registry.List(league) {
		out = append(out, modes.OverviewOf(m))
	}
	return out
}

func (f *fakeLifecycle) PrepareConfig(league domain.League, key string, cfg map[string]any) (lifecycle.PreparedConfig, error) {
	if _, err := f.registry.Lookup(league, key); err != nil {
		return lifecycle.PreparedConfig{}, err
	}
	if _, ok := cfg["line"]; !ok {
		return lifecycle.PreparedConfig{}, domain.Invalidf("line is required")
	}
	return lifecycle.PreparedConfig{Options: []string{"Over", "Under"}, WinningCondition: "total points vs line"}, nil
}

type fakeQueue struct {
	counts domain.JobCounts
	failed []domain.ResolutionJob
	err    error
}

func (f *fakeQueue) Counts(context.Context) (domain.JobCounts, error) { return f.counts, f.err }

func (f *fakeQueue) Failed(_ context.Context, limit int) ([]domain.ResolutionJob, error) {
	if limit < len(f.failed) {
		return f.failed[:limit], f.err
	}
	return f.failed, f.err
}

type pingerFunc func(context.Context) error

func (p pingerFunc) Ping(ctx context.Context) error { return p(ctx) }

type harness struct {
	life     *fakeLifecycle
	queue    *fakeQueue
	breakers *breaker.Set
	pingErr  error
	handler  http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		life:     &fakeLifecycle{verdicts: map[string]string{}, registry: modes.NewDefaultRegistry()},
		queue:    &fakeQueue{counts: domain.JobCounts{Waiting: 2, Failed: 1}},
		breakers: breaker.NewSet(breaker.Config{Threshold: 3, Cooldown: time.Minute}),
	}
	h.breakers.Get("gamedata")
	logger := testLogger()
	handlers := Handlers{
		Health: handler.NewHealthHandler(map[string]handler.Pinger{
			"store": pingerFunc(func(context.Context) error { return h.pingErr }),
		}, logger),
		Status: handler.NewStatusHandler("full", time.Now().Add(-time.Minute), h.queue, h.breakers, logger),
		Wagers: handler.NewWagerHandler(h.life, logger),
	}
	h.handler = NewHandler(Config{APIKey: testKey}, handlers, nil, logger)
	return h
}

func (h *harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Authorization", "Bearer "+testKey)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthIsPublic(t *testing.T) {
	h := newHarness(t)

	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]any](t, rec)["status"])

	h.pingErr = errors.New("connection refused")
	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decode[map[string]any](t, rec)["status"])
}

func TestProtectedRoutesNeedKey(t *testing.T) {
	h := newHarness(t)

	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("X-API-Key", testKey)
	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusAndQueue(t *testing.T) {
	h := newHarness(t)
	h.queue.failed = []domain.ResolutionJob{
		{Key: domain.JobKey("w1", domain.JobSetWinner), Type: domain.JobSetWinner, WagerID: "w1", Attempts: 5, LastError: "boom"},
		{Key: domain.JobKey("w2", domain.JobWash), Type: domain.JobWash, WagerID: "w2", Attempts: 5},
	}

	st := decode[domain.SystemStatus](t, h.do(t, http.MethodGet, "/api/status", ""))
	assert.Equal(t, "full", st.Mode)
	assert.GreaterOrEqual(t, st.UptimeSeconds, int64(59))
	assert.Equal(t, int64(2), st.Queue.Waiting)
	require.Len(t, st.Breakers, 1)
	assert.Equal(t, "gamedata", st.Breakers[0].Name)

	counts := decode[domain.JobCounts](t, h.do(t, http.MethodGet, "/api/queue", ""))
	assert.Equal(t, int64(1), counts.Failed)

	failed := decode[[]domain.ResolutionJob](t, h.do(t, http.MethodGet, "/api/queue/failed?limit=1", ""))
	require.Len(t, failed, 1)
	assert.Equal(t, "w1", failed[0].WagerID)

	h.queue.err = domain.ErrUnavailable
	assert.Equal(t, http.StatusServiceUnavailable, h.do(t, http.MethodGet, "/api/queue", "").Code)
}

func TestBreakerReset(t *testing.T) {
	h := newHarness(t)
	b := h.breakers.Get("gamedata")
	for i := 0; i < 3; i++ {
		_, _ = breaker.Do(context.Background(), b, func(context.Context) error { return errors.New("upstream down") })
	}
	require.Equal(t, breaker.StateOpen, b.State())

	rec := h.do(t, http.MethodPost, "/api/breakers/gamedata/reset", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, breaker.StateClosed, b.State())

	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodPost, "/api/breakers/nope/reset", "").Code)
}

func TestModeCatalogue(t *testing.T) {
	h := newHarness(t)

	all := decode[[]modes.Overview](t, h.do(t, http.MethodGet, "/api/modes", ""))
	assert.Len(t, all, 6)

	nba := decode[[]modes.Overview](t, h.do(t, http.MethodGet, "/api/modes?league=NBA", ""))
	assert.Less(t, len(nba), len(all))

	ov := decode[modes.Overview](t, h.do(t, http.MethodGet, "/api/modes/NFL/total_disaster", ""))
	assert.Equal(t, "total_disaster", ov.Key)

	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/api/modes/NFL/nope", "").Code)
	assert.Equal(t, http.StatusUnprocessableEntity, h.do(t, http.MethodGet, "/api/modes/NBA/choose_their_fate", "").Code)
}

func TestPrepareConfig(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/modes/NFL/total_disaster/prepare", `{"line": 44.5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pc := decode[lifecycle.PreparedConfig](t, rec)
	assert.Equal(t, []string{"Over", "Under"}, pc.Options)

	assert.Equal(t, http.StatusUnprocessableEntity, h.do(t, http.MethodPost, "/api/modes/NFL/total_disaster/prepare", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/api/modes/NFL/total_disaster/prepare", `{"line":`).Code)
}

func TestEvaluateAndValidation(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/events/401/evaluate", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"401"}, h.life.evaluated)

	h.life.evalErr = domain.ErrUnavailable
	assert.Equal(t, http.StatusServiceUnavailable, h.do(t, http.MethodPost, "/api/events/401/evaluate", "").Code)

	rec = h.do(t, http.MethodPost, "/api/wagers/w9/validation", `{"choice":"Yes"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "Yes", h.life.verdicts["w9"])

	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/api/wagers/w9/validation", `{"choice":""}`).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/api/wagers/w9/validation", `{"choice":"Yes","extra":1}`).Code)

	h.life.verdErr = domain.ErrConflict
	assert.Equal(t, http.StatusConflict, h.do(t, http.MethodPost, "/api/wagers/w9/validation", `{"choice":"No"}`).Code)

	h.life.verdErr = errors.New("disk on fire")
	assert.Equal(t, http.StatusInternalServerError, h.do(t, http.MethodPost, "/api/wagers/w9/validation", `{"choice":"No"}`).Code)
}

func TestUnknownRouteAndMethod(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/api/markets", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, h.do(t, http.MethodDelete, "/api/status", "").Code)
}

func TestResolutionStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := memory.NewSignalBus()
	hub := ws.NewHub(bus, "full", testLogger())
	go func() { _ = hub.Run(ctx) }()

	h := newHarness(t)
	srv := httptest.NewServer(NewHandler(Config{}, Handlers{
		Health: handler.NewHealthHandler(nil, testLogger()),
		Status: handler.NewStatusHandler("full", time.Now(), h.queue, h.breakers, testLogger()),
		Wagers: handler.NewWagerHandler(h.life, testLogger()),
	}, hub, testLogger()))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/resolutions?event_id=E2"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	type frame struct {
		Type    string                 `json:"type"`
		Payload domain.ResolutionEvent `json:"payload"`
	}
	read := func() frame {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		return f
	}
	assert.Equal(t, "hello", read().Type)

	publish := func(ev domain.ResolutionEvent) {
		b, err := json.Marshal(ev)
		require.NoError(t, err)
		require.NoError(t, bus.Publish(ctx, domain.ChannelWagerResolved, b))
	}
	publish(domain.ResolutionEvent{WagerID: "w1", EventID: "E1", Status: domain.WagerResolved, Choice: "Over"})
	publish(domain.ResolutionEvent{WagerID: "w2", EventID: "E2", Status: domain.WagerWashed, Reason: "game cancelled"})

	f := read()
	assert.Equal(t, "wager_resolved", f.Type)
	assert.Equal(t, "w2", f.Payload.WagerID)
	assert.Equal(t, domain.WagerWashed, f.Payload.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	q := queue.New(memory.NewJobBackend(), queue.Config{Workers: 1, MaxAttempts: 1}, testLogger(), queue.WithMeterProvider(mp))
	_, err := q.Enqueue(context.Background(), domain.ResolutionJob{Type: domain.JobWash, WagerID: "w1"})
	require.NoError(t, err)

	h := newHarness(t)
	handlers := Handlers{
		Health:  handler.NewHealthHandler(nil, testLogger()),
		Status:  handler.NewStatusHandler("full", time.Now(), q, h.breakers, testLogger()),
		Wagers:  handler.NewWagerHandler(h.life, testLogger()),
		Metrics: handler.NewMetricsHandler(reader, testLogger()),
	}
	srv := NewHandler(Config{}, handlers, nil, testLogger())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	points := decode[[]handler.MetricPoint](t, rec)
	require.NotEmpty(t, points)
	assert.Equal(t, "resolver.jobs.enqueued", points[0].Name)
	assert.Equal(t, "added", points[0].Attributes["outcome"])
	assert.Equal(t, float64(1), points[0].Value)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/queue", nil))
	assert.Equal(t, int64(1), decode[domain.JobCounts](t, rec).Waiting)
}
