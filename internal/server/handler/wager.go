package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/betresolver/internal/domain"
	"github.com/alanyoungcy/betresolver/internal/lifecycle"
	"github.com/alanyoungcy/betresolver/internal/modes"
)

// Lifecycle is the subset of lifecycle.Service the API drives.
type Lifecycle interface {
	EvaluateEligibleWagers(ctx context.Context, eventID string) error
	SubmitManualValidation(ctx context.Context, wagerID, choice string) error
	GetModeOverview(league domain.League, key string) (modes.Overview, error)
	ListSupportedModes(league domain.League) []modes.Overview
	PrepareConfig(league domain.League, key string, cfg map[string]any) (lifecycle.PreparedConfig, error)
}

// WagerHandler serves mode catalogue and wager operations.
type WagerHandler struct {
	svc    Lifecycle
	logger *slog.Logger
}

// NewWagerHandler creates a WagerHandler.
func NewWagerHandler(svc Lifecycle, logger *slog.Logger) *WagerHandler {
	return &WagerHandler{svc: svc, logger: logger}
}

// ListModes lists modes, optionally for one league.
// GET /api/modes?league=
func (h *WagerHandler) ListModes(w http.ResponseWriter, r *http.Request) {
	league := domain.LeagueAny
	if l := strings.TrimSpace(r.URL.Query().Get("league")); l != "" {
		league = domain.ParseLeague(l)
	}
	writeJSON(w, http.StatusOK, h.svc.ListSupportedModes(league))
}

// GetMode describes one mode.
// GET /api/modes/{league}/{key}
func (h *WagerHandler) GetMode(w http.ResponseWriter, r *http.Request) {
	ov, err := h.svc.GetModeOverview(domain.ParseLeague(r.PathValue("league")), r.PathValue("key"))
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

// PrepareConfig validates a proposal config and returns its options.
// POST /api/modes/{league}/{key}/prepare
func (h *WagerHandler) PrepareConfig(w http.ResponseWriter, r *http.Request) {
	var cfg map[string]any
	if err := decodeBody(w, r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	pc, err := h.svc.PrepareConfig(domain.ParseLeague(r.PathValue("league")), r.PathValue("key"), cfg)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pc)
}

// EvaluateEvent runs evaluation for an event now.
// POST /api/events/{id}/evaluate
func (h *WagerHandler) EvaluateEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.svc.EvaluateEligibleWagers(r.Context(), id); err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "evaluated", "event_id": id})
}

type validationRequest struct {
	Choice string `json:"choice"`
}

// SubmitValidation records a participant verdict for a manual wager.
// POST /api/wagers/{id}/validation
func (h *WagerHandler) SubmitValidation(w http.ResponseWriter, r *http.Request) {
	var req validationRequest
	if err := decodeBody(w, r, &req); err != nil || strings.TrimSpace(req.Choice) == "" {
		writeError(w, http.StatusBadRequest, "body must be {\"choice\": \"...\"}")
		return
	}
	id := r.PathValue("id")
	if err := h.svc.SubmitManualValidation(r.Context(), id, req.Choice); err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "wager_id": id})
}
