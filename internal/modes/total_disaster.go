package modes

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

// Over/under choices.
const (
	ChoiceOver  = "Over"
	ChoiceUnder = "Under"
)

// TotalDisaster is an over/under on the combined final score.
//
// Config keys: line.
type TotalDisaster struct{}

func (TotalDisaster) Key() string               { return "total_disaster" }
func (TotalDisaster) Label() string             { return "Total Disaster" }
func (TotalDisaster) Leagues() domain.LeagueSet { return domain.LeagueSet{domain.LeagueAny} }

func (TotalDisaster) Overview() Overview {
	return Overview{
		Key:          "total_disaster",
		Label:        "Total Disaster",
		Description:  "Will the combined final score land over or under the line?",
		Leagues:      domain.LeagueSet{domain.LeagueAny},
		ConfigFields: []string{"line"},
	}
}

func (TotalDisaster) Options(map[string]any) []string { return []string{ChoiceOver, ChoiceUnder} }

func (TotalDisaster) WinningCondition(cfg map[string]any) string {
	line, ok := domain.ConfigFloat(cfg, "line")
	if !ok {
		return "Combined final score over or under the line"
	}
	return fmt.Sprintf("Combined final score over or under %g", line)
}

func (TotalDisaster) Validate(cfg map[string]any) error {
	line, ok := domain.ConfigFloat(cfg, "line")
	if !ok {
		return domain.Invalidf("line is required")
	}
	if line < 0 {
		return domain.Invalidf("line must not be negative")
	}
	return nil
}

func (m TotalDisaster) Evaluate(_ context.Context, in EvalInput) (Outcome, error) {
	if err := m.Validate(in.Wager.Config); err != nil {
		return Outcome{}, err
	}
	if !in.Snapshot.Status.Final() {
		return undecided()
	}
	line, _ := domain.ConfigFloat(in.Wager.Config, "line")
	total := totalScore(in.Snapshot)
	switch {
	case total > line:
		return winner(ChoiceOver, fmt.Sprintf("final total %g over %g", total, line))
	case total < line:
		return winner(ChoiceUnder, fmt.Sprintf("final total %g under %g", total, line))
	default:
		return wash(fmt.Sprintf("push: final total %g equals the line", total))
	}
}
