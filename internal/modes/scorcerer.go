package modes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

// Scorcerer pays the side that scores next after lock.
//
// Config keys: team1_id, team1_name, team2_id, team2_name.
type Scorcerer struct{}

func (Scorcerer) Key() string   { return "scorcerer" }
func (Scorcerer) Label() string { return "Scorcerer" }

func (Scorcerer) Leagues() domain.LeagueSet {
	return domain.LeagueSet{domain.LeagueNFL, domain.LeagueNBA, domain.LeagueNHL, domain.LeagueMLB}
}

func (s Scorcerer) Overview() Overview {
	return Overview{
		Key:          s.Key(),
		Label:        s.Label(),
		Description:  "Which team scores next? Both scoring in the same update is a wash.",
		Leagues:      s.Leagues(),
		ConfigFields: []string{"team1_id", "team1_name", "team2_id", "team2_name"},
	}
}

type side struct {
	id   string
	name string
}

func (s side) label() string {
	if s.name != "" {
		return s.name
	}
	return s.id
}

func parseSides(cfg map[string]any) ([2]side, error) {
	sides := [2]side{
		{id: domain.ConfigString(cfg, "team1_id"), name: domain.ConfigString(cfg, "team1_name")},
		{id: domain.ConfigString(cfg, "team2_id"), name: domain.ConfigString(cfg, "team2_name")},
	}
	if sides[0].id == "" || sides[1].id == "" {
		return sides, domain.Invalidf("both team ids are required")
	}
	if sides[0].id == sides[1].id {
		return sides, domain.Invalidf("teams must be different")
	}
	return sides, nil
}

func (Scorcerer) Options(cfg map[string]any) []string {
	sides, err := parseSides(cfg)
	if err != nil {
		return nil
	}
	return []string{sides[0].label(), sides[1].label()}
}

func (Scorcerer) WinningCondition(cfg map[string]any) string {
	sides, err := parseSides(cfg)
	if err != nil {
		return "The next team to score wins"
	}
	return fmt.Sprintf("Next to score between %s and %s wins", sides[0].label(), sides[1].label())
}

func (Scorcerer) Validate(cfg map[string]any) error {
	_, err := parseSides(cfg)
	return err
}

func teamKey(teamID string) string { return "team:" + teamID }

func (Scorcerer) CaptureBaseline(w domain.Wager, snap *domain.GameSnapshot, at time.Time) (domain.Baseline, error) {
	sides, err := parseSides(w.Config)
	if err != nil {
		return domain.Baseline{}, err
	}
	b := domain.Baseline{WagerID: w.ID, Values: make(map[string]float64, 2), CapturedAt: at}
	for _, s := range sides {
		t, ok := snap.Team(s.id)
		if !ok {
			return domain.Baseline{}, domain.Invalidf("team %s not in game", s.id)
		}
		b.Values[teamKey(s.id)] = t.Score
	}
	return b, nil
}

func (Scorcerer) Evaluate(_ context.Context, in EvalInput) (Outcome, error) {
	sides, err := parseSides(in.Wager.Config)
	if err != nil {
		return Outcome{}, err
	}
	if in.Baseline == nil {
		return Outcome{}, domain.Invalidf("baseline missing")
	}

	var scored []string
	for _, s := range sides {
		base, ok := in.Baseline.Values[teamKey(s.id)]
		if !ok {
			return Outcome{}, domain.Invalidf("baseline missing for team %s", s.id)
		}
		t, ok := in.Snapshot.Team(s.id)
		if !ok {
			return Outcome{}, domain.Invalidf("team %s not in game", s.id)
		}
		if t.Score-base > 0 {
			scored = append(scored, s.label())
		}
	}

	switch {
	case len(scored) == 1:
		return winner(scored[0], scored[0]+" scored next")
	case len(scored) > 1:
		return wash("simultaneous scoring: " + strings.Join(scored, " and ") + " both scored")
	case in.Snapshot.Status.Final():
		return wash("no further scoring")
	default:
		return undecided()
	}
}

func (Scorcerer) ConfigSteps(snap *domain.GameSnapshot) []ConfigStep {
	teams := teamChoices(snap)
	return []ConfigStep{
		{Key: "team1_id", Prompt: "First team", Choices: teams},
		{Key: "team2_id", Prompt: "Second team", Choices: teams},
	}
}
