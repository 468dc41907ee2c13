package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

// QueueInspector exposes job queue depth.
type QueueInspector interface {
	Counts(ctx context.Context) (domain.JobCounts, error)
	Failed(ctx context.Context, limit int) ([]domain.ResolutionJob, error)
}

// BreakerSet exposes circuit breaker state.
type BreakerSet interface {
	Snapshots() []domain.BreakerSnapshot
	Reset(name string) error
}

// StatusHandler serves the process summary, queue and breaker endpoints.
type StatusHandler struct {
	mode      string
	startedAt time.Time
	queue     QueueInspector
	breakers  BreakerSet
	logger    *slog.Logger
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, startedAt time.Time, queue QueueInspector, breakers BreakerSet, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{mode: mode, startedAt: startedAt, queue: queue, breakers: breakers, logger: logger}
}

// GetStatus responds with a domain.SystemStatus.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := h.queue.Counts(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.SystemStatus{
		Mode:          h.mode,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Queue:         counts,
		Breakers:      h.breakers.Snapshots(),
	})
}

// GetQueue responds with job counts by state.
// GET /api/queue
func (h *StatusHandler) GetQueue(w http.ResponseWriter, r *http.Request) {
	counts, err := h.queue.Counts(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// ListFailed responds with the newest dead-lettered jobs.
// GET /api/queue/failed?limit=
func (h *StatusHandler) ListFailed(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.queue.Failed(r.Context(), queryInt(r, "limit", 50, 500))
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	if jobs == nil {
		jobs = []domain.ResolutionJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// ListBreakers responds with every breaker's state.
// GET /api/breakers
func (h *StatusHandler) ListBreakers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.breakers.Snapshots())
}

// ResetBreaker closes a breaker by name.
// POST /api/breakers/{name}/reset
func (h *StatusHandler) ResetBreaker(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := h.breakers.Reset(name); err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "breaker reset by operator", slog.String("breaker", name))
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset", "name": name})
}
