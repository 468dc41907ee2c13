package lifecycle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/betresolver/internal/domain"
	"github.com/alanyoungcy/betresolver/internal/modes"
)

// SubmitManualValidation records a participant's verdict for a pending
// manual-mode wager. The verdict is applied through the same set_winner job
// as automated outcomes.
func (s *Service) SubmitManualValidation(ctx context.Context, wagerID, choice string) error {
	w, err := s.deps.Wagers.GetByID(ctx, wagerID)
	if err != nil {
		return fmt.Errorf("lifecycle: manual validation: %w", err)
	}
	mode, err := s.deps.Registry.Lookup(w.League, w.ModeKey)
	if err != nil {
		return fmt.Errorf("lifecycle: manual validation %s: %w", wagerID, err)
	}
	if !modes.IsManual(mode) {
		return domain.Invalidf("mode %s resolves automatically", w.ModeKey)
	}
	if w.Status != domain.WagerPending {
		return domain.Invalidf("wager %s is %s, not pending", wagerID, w.Status)
	}
	if !contains(mode.Options(w.Config), choice) {
		return domain.Invalidf("%q is not an option of wager %s", choice, wagerID)
	}

	s.logger.InfoContext(ctx, "manual verdict submitted",
		slog.String("wager_id", wagerID),
		slog.String("choice", choice),
	)
	return s.enqueue(ctx, domain.ResolutionJob{
		Type:    domain.JobSetWinner,
		WagerID: wagerID,
		Payload: map[string]string{domain.PayloadChoice: choice, domain.PayloadReason: "validated by participant"},
	})
}

// GetModeOverview describes one mode for league.
func (s *Service) GetModeOverview(league domain.League, key string) (modes.Overview, error) {
	m, err := s.deps.Registry.Lookup(league, key)
	if err != nil {
		return modes.Overview{}, err
	}
	return modes.OverviewOf(m), nil
}

// ListSupportedModes describes every mode available in league.
func (s *Service) ListSupportedModes(league domain.League) []modes.Overview {
	list := s.deps.Registry.List(league)
	out := make([]modes.Overview, 0, len(list))
	for _, m := range list {
		out = append(out, modes.OverviewOf(m))
	}
	return out
}

// PreparedConfig is a validated proposal configuration.
type PreparedConfig struct {
	Options          []string `json:"options"`
	WinningCondition string   `json:"winning_condition"`
}

// PrepareConfig validates cfg for a new proposal and returns its derived
// options and winning condition.
func (s *Service) PrepareConfig(league domain.League, key string, cfg map[string]any) (PreparedConfig, error) {
	m, err := s.deps.Registry.Lookup(league, key)
	if err != nil {
		return PreparedConfig{}, err
	}
	if v, ok := m.(modes.Validator); ok {
		if err := v.Validate(cfg); err != nil {
			return PreparedConfig{}, err
		}
	}
	opts := m.Options(cfg)
	if len(opts) < 2 {
		return PreparedConfig{}, domain.Invalidf("mode %s needs at least two options", key)
	}
	return PreparedConfig{Options: opts, WinningCondition: m.WinningCondition(cfg)}, nil
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
