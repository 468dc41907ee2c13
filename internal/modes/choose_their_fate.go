package modes

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

// Possession outcomes.
const (
	FateTouchdown = "Touchdown"
	FateFieldGoal = "Field Goal"
	FateSafety    = "Safety"
	FatePunt      = "Punt"
	FateTurnover  = "Turnover"
)

// Stat paths in the refined NFL snapshot.
const (
	statTouchdowns = "scoring.touchdowns"
	statFieldGoals = "scoring.fieldGoals"
	statSafeties   = "scoring.safeties"
	statPunts      = "punting.punts"
)

// ChooseTheirFate predicts how the current drive ends.
//
// Config keys: team_id (defaults to the team in possession at lock), team_name.
type ChooseTheirFate struct{}

func (ChooseTheirFate) Key() string               { return "choose_their_fate" }
func (ChooseTheirFate) Label() string             { return "Choose Their Fate" }
func (ChooseTheirFate) Leagues() domain.LeagueSet { return domain.LeagueSet{domain.LeagueNFL} }

func (c ChooseTheirFate) Overview() Overview {
	return Overview{
		Key:          c.Key(),
		Label:        c.Label(),
		Description:  "How does this drive end: touchdown, field goal, safety, punt or turnover?",
		Leagues:      c.Leagues(),
		ConfigFields: []string{"team_id", "team_name"},
	}
}

func (ChooseTheirFate) Options(map[string]any) []string {
	return []string{FateTouchdown, FateFieldGoal, FateSafety, FatePunt, FateTurnover}
}

func (ChooseTheirFate) WinningCondition(cfg map[string]any) string {
	name := domain.ConfigString(cfg, "team_name")
	if name == "" {
		name = "the team with the ball"
	}
	return fmt.Sprintf("Call how the drive by %s ends", name)
}

func (ChooseTheirFate) Validate(map[string]any) error { return nil }

type driveCounts struct {
	touchdowns, fieldGoals, safeties, punts float64
}

func countsOf(t *domain.TeamLine) driveCounts {
	var c driveCounts
	c.touchdowns, _ = t.Stats.Lookup(statTouchdowns)
	c.fieldGoals, _ = t.Stats.Lookup(statFieldGoals)
	c.safeties, _ = t.Stats.Lookup(statSafeties)
	c.punts, _ = t.Stats.Lookup(statPunts)
	return c
}

func (c driveCounts) put(prefix string, m map[string]float64) {
	m[prefix+"touchdowns"] = c.touchdowns
	m[prefix+"fieldGoals"] = c.fieldGoals
	m[prefix+"safeties"] = c.safeties
	m[prefix+"punts"] = c.punts
}

func readCounts(prefix string, m map[string]float64) (driveCounts, bool) {
	var c driveCounts
	var ok [4]bool
	c.touchdowns, ok[0] = m[prefix+"touchdowns"]
	c.fieldGoals, ok[1] = m[prefix+"fieldGoals"]
	c.safeties, ok[2] = m[prefix+"safeties"]
	c.punts, ok[3] = m[prefix+"punts"]
	return c, ok[0] && ok[1] && ok[2] && ok[3]
}

func (ChooseTheirFate) CaptureBaseline(w domain.Wager, snap *domain.GameSnapshot, at time.Time) (domain.Baseline, error) {
	teamID := domain.ConfigString(w.Config, "team_id")
	if teamID == "" {
		teamID = snap.PossessionTeam()
	}
	if teamID == "" {
		return domain.Baseline{}, domain.Invalidf("no team in possession at lock")
	}
	own, ok := snap.Team(teamID)
	if !ok {
		return domain.Baseline{}, domain.Invalidf("team %s not in game", teamID)
	}
	opp, ok := snap.Opponent(teamID)
	if !ok {
		return domain.Baseline{}, domain.Invalidf("opponent of %s not in game", teamID)
	}

	b := domain.Baseline{
		WagerID:    w.ID,
		Values:     make(map[string]float64, 8),
		Labels:     map[string]string{"team_id": teamID, "opponent_id": opp.TeamID, "possession": snap.PossessionTeam()},
		CapturedAt: at,
	}
	countsOf(own).put("own:", b.Values)
	countsOf(opp).put("opp:", b.Values)
	return b, nil
}

func (ChooseTheirFate) Evaluate(_ context.Context, in EvalInput) (Outcome, error) {
	if in.Baseline == nil {
		return Outcome{}, domain.Invalidf("baseline missing")
	}
	teamID := in.Baseline.Labels["team_id"]
	oppID := in.Baseline.Labels["opponent_id"]
	if teamID == "" || oppID == "" {
		return Outcome{}, domain.Invalidf("baseline has no possessing team")
	}
	ownBase, ok1 := readCounts("own:", in.Baseline.Values)
	oppBase, ok2 := readCounts("opp:", in.Baseline.Values)
	if !ok1 || !ok2 {
		return Outcome{}, domain.Invalidf("baseline incomplete")
	}
	own, ok := in.Snapshot.Team(teamID)
	if !ok {
		return Outcome{}, domain.Invalidf("team %s not in game", teamID)
	}
	opp, ok := in.Snapshot.Team(oppID)
	if !ok {
		return Outcome{}, domain.Invalidf("team %s not in game", oppID)
	}
	ownNow, oppNow := countsOf(own), countsOf(opp)

	label := teamLabel(own)
	holder := in.Snapshot.PossessionTeam()
	switch {
	case ownNow.touchdowns > ownBase.touchdowns:
		return winner(FateTouchdown, label+" scored a touchdown")
	case ownNow.fieldGoals > ownBase.fieldGoals:
		return winner(FateFieldGoal, label+" kicked a field goal")
	case ownNow.safeties > ownBase.safeties || oppNow.safeties > oppBase.safeties:
		return winner(FateSafety, "drive ended in a safety")
	case ownNow.punts > ownBase.punts:
		return winner(FatePunt, label+" punted")
	case oppNow.touchdowns > oppBase.touchdowns || oppNow.fieldGoals > oppBase.fieldGoals:
		return winner(FateTurnover, "opponent scored after a turnover")
	case holder != "" && holder != teamID:
		return winner(FateTurnover, "possession changed without a score or punt")
	case in.Snapshot.Status.Final():
		return wash("game ended before the drive was decided")
	default:
		return undecided()
	}
}

func (ChooseTheirFate) ConfigSteps(snap *domain.GameSnapshot) []ConfigStep {
	return []ConfigStep{
		{Key: "team_id", Prompt: "Which team's drive?", Choices: teamChoices(snap)},
	}
}
