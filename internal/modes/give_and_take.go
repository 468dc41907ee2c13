package modes

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

// GiveAndTake is a point spread. The signed spread is added to the named
// team's final score; a negative spread makes that team the favourite.
//
// Config keys: team_id, team_name, opponent_id, opponent_name, spread.
type GiveAndTake struct{}

func (GiveAndTake) Key() string               { return "give_and_take" }
func (GiveAndTake) Label() string             { return "Give and Take" }
func (GiveAndTake) Leagues() domain.LeagueSet { return domain.LeagueSet{domain.LeagueAny} }

func (g GiveAndTake) Overview() Overview {
	return Overview{
		Key:          g.Key(),
		Label:        g.Label(),
		Description:  "Pick a side against the spread. Landing exactly on it is a push.",
		Leagues:      g.Leagues(),
		ConfigFields: []string{"team_id", "team_name", "opponent_id", "opponent_name", "spread"},
	}
}

type spreadConfig struct {
	team     side
	opponent side
	spread   float64
}

func parseSpread(cfg map[string]any) (spreadConfig, error) {
	sc := spreadConfig{
		team:     side{id: domain.ConfigString(cfg, "team_id"), name: domain.ConfigString(cfg, "team_name")},
		opponent: side{id: domain.ConfigString(cfg, "opponent_id"), name: domain.ConfigString(cfg, "opponent_name")},
	}
	if sc.team.id == "" || sc.opponent.id == "" {
		return sc, domain.Invalidf("team_id and opponent_id are required")
	}
	if sc.team.id == sc.opponent.id {
		return sc, domain.Invalidf("team and opponent must be different")
	}
	s, ok := domain.ConfigFloat(cfg, "spread")
	if !ok {
		return sc, domain.Invalidf("spread is required")
	}
	sc.spread = s
	return sc, nil
}

func (sc spreadConfig) teamOption() string     { return fmt.Sprintf("%s %+g", sc.team.label(), sc.spread) }
func (sc spreadConfig) opponentOption() string { return fmt.Sprintf("%s %+g", sc.opponent.label(), -sc.spread) }

func (GiveAndTake) Options(cfg map[string]any) []string {
	sc, err := parseSpread(cfg)
	if err != nil {
		return nil
	}
	return []string{sc.teamOption(), sc.opponentOption()}
}

func (GiveAndTake) WinningCondition(cfg map[string]any) string {
	sc, err := parseSpread(cfg)
	if err != nil {
		return "Cover the spread to win"
	}
	return fmt.Sprintf("%s covers if its score %+g beats %s", sc.team.label(), sc.spread, sc.opponent.label())
}

func (GiveAndTake) Validate(cfg map[string]any) error {
	_, err := parseSpread(cfg)
	return err
}

func (GiveAndTake) Evaluate(_ context.Context, in EvalInput) (Outcome, error) {
	sc, err := parseSpread(in.Wager.Config)
	if err != nil {
		return Outcome{}, err
	}
	team, ok := in.Snapshot.Team(sc.team.id)
	if !ok {
		return Outcome{}, domain.Invalidf("team %s not in game", sc.team.id)
	}
	opp, ok := in.Snapshot.Team(sc.opponent.id)
	if !ok {
		return Outcome{}, domain.Invalidf("team %s not in game", sc.opponent.id)
	}
	if !in.Snapshot.Status.Final() {
		return undecided()
	}

	adjusted := team.Score + sc.spread
	switch {
	case adjusted > opp.Score:
		return winner(sc.teamOption(), fmt.Sprintf("%g%+g beats %g", team.Score, sc.spread, opp.Score))
	case adjusted < opp.Score:
		return winner(sc.opponentOption(), fmt.Sprintf("%g beats %g%+g", opp.Score, team.Score, sc.spread))
	default:
		return wash(fmt.Sprintf("push: %g%+g equals %g", team.Score, sc.spread, opp.Score))
	}
}

func (GiveAndTake) ConfigSteps(snap *domain.GameSnapshot) []ConfigStep {
	teams := teamChoices(snap)
	return []ConfigStep{
		{Key: "team_id", Prompt: "Team taking the spread", Choices: teams},
		{Key: "opponent_id", Prompt: "Opponent", Choices: teams},
		{Key: "spread", Prompt: "Spread for the team (negative when favoured)"},
	}
}
