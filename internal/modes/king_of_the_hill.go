package modes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

// Progress tracking policies for threshold races.
const (
	ProgressStartingNow = "starting_now"
	ProgressCumulative  = "cumulative"
)

// KingOfTheHill is a two-player race to a stat threshold.
//
// Config keys: player1_id, player1_name, player2_id, player2_name, stat
// ("category.key"), threshold, progress_mode.
type KingOfTheHill struct{}

func (KingOfTheHill) Key() string   { return "king_of_the_hill" }
func (KingOfTheHill) Label() string { return "King of the Hill" }

func (KingOfTheHill) Leagues() domain.LeagueSet {
	return domain.LeagueSet{domain.LeagueNFL, domain.LeagueNBA}
}

func (KingOfTheHill) Overview() Overview {
	return Overview{
		Key:         "king_of_the_hill",
		Label:       "King of the Hill",
		Description: "Two players race to a stat threshold. First to reach it wins.",
		Leagues:     domain.LeagueSet{domain.LeagueNFL, domain.LeagueNBA},
		ConfigFields: []string{
			"player1_id", "player1_name", "player2_id", "player2_name",
			"stat", "threshold", "progress_mode",
		},
	}
}

type raceConfig struct {
	players   [2]racer
	stat      string
	threshold float64
	mode      string
}

type racer struct {
	id   string
	name string
}

func (r racer) label() string {
	if r.name != "" {
		return r.name
	}
	return r.id
}

func parseRaceConfig(cfg map[string]any) (raceConfig, error) {
	rc := raceConfig{
		players: [2]racer{
			{id: domain.ConfigString(cfg, "player1_id"), name: domain.ConfigString(cfg, "player1_name")},
			{id: domain.ConfigString(cfg, "player2_id"), name: domain.ConfigString(cfg, "player2_name")},
		},
		stat: domain.ConfigString(cfg, "stat"),
		mode: domain.ConfigString(cfg, "progress_mode"),
	}
	if rc.players[0].id == "" || rc.players[1].id == "" {
		return rc, domain.Invalidf("both player ids are required")
	}
	if rc.players[0].id == rc.players[1].id {
		return rc, domain.Invalidf("players must be different")
	}
	if cat, key, ok := strings.Cut(rc.stat, "."); !ok || cat == "" || key == "" {
		return rc, domain.Invalidf("invalid stat key %q", rc.stat)
	}
	t, ok := domain.ConfigFloat(cfg, "threshold")
	if !ok || t <= 0 {
		return rc, domain.Invalidf("threshold must be a positive number")
	}
	rc.threshold = t
	switch rc.mode {
	case "":
		rc.mode = ProgressStartingNow
	case ProgressStartingNow, ProgressCumulative:
	default:
		return rc, domain.Invalidf("unknown progress_mode %q", rc.mode)
	}
	return rc, nil
}

func (KingOfTheHill) Options(cfg map[string]any) []string {
	rc, _ := parseRaceConfig(cfg)
	out := make([]string, 0, 2)
	for _, p := range rc.players {
		if p.label() != "" {
			out = append(out, p.label())
		}
	}
	return out
}

func (KingOfTheHill) WinningCondition(cfg map[string]any) string {
	rc, err := parseRaceConfig(cfg)
	if err != nil {
		return "First player to reach the threshold wins"
	}
	scope := "from lock"
	if rc.mode == ProgressCumulative {
		scope = "in game totals"
	}
	return fmt.Sprintf("First of %s and %s to reach %g %s %s wins",
		rc.players[0].label(), rc.players[1].label(), rc.threshold, rc.stat, scope)
}

func (KingOfTheHill) Validate(cfg map[string]any) error {
	_, err := parseRaceConfig(cfg)
	return err
}

func baselineKey(playerID string) string { return "player:" + playerID }

// playerStat reads stat for playerID. A player without the stat has 0 as
// long as some player in the game reports it; a stat nobody reports is a
// configuration error.
func playerStat(snap *domain.GameSnapshot, playerID, stat string) (float64, error) {
	p, _, ok := snap.Player(playerID)
	if !ok {
		return 0, domain.Invalidf("player %s not in game", playerID)
	}
	if v, ok := p.Stats.Lookup(stat); ok {
		return v, nil
	}
	if !statReported(snap, stat) {
		return 0, domain.Invalidf("stat %s not reported", stat)
	}
	return 0, nil
}

func statReported(snap *domain.GameSnapshot, stat string) bool {
	for _, t := range snap.Teams {
		for _, p := range t.Players {
			if _, ok := p.Stats.Lookup(stat); ok {
				return true
			}
		}
	}
	return false
}

func (KingOfTheHill) CaptureBaseline(w domain.Wager, snap *domain.GameSnapshot, at time.Time) (domain.Baseline, error) {
	rc, err := parseRaceConfig(w.Config)
	if err != nil {
		return domain.Baseline{}, err
	}
	b := domain.Baseline{
		WagerID:    w.ID,
		Values:     make(map[string]float64, 2),
		Labels:     map[string]string{"stat": rc.stat},
		CapturedAt: at,
	}
	for _, p := range rc.players {
		v, err := playerStat(snap, p.id, rc.stat)
		if err != nil {
			return domain.Baseline{}, err
		}
		b.Values[baselineKey(p.id)] = v
	}
	return b, nil
}

func (KingOfTheHill) Evaluate(_ context.Context, in EvalInput) (Outcome, error) {
	rc, err := parseRaceConfig(in.Wager.Config)
	if err != nil {
		return Outcome{}, err
	}
	if rc.mode == ProgressStartingNow && in.Baseline == nil {
		return Outcome{}, domain.Invalidf("baseline missing")
	}

	observed := in.Snapshot.ObservedAt(in.Now)
	next := &domain.ProgressRecord{
		WagerID:      in.Wager.ID,
		Participants: make(map[string]domain.ParticipantProgress, 2),
		UpdatedAt:    in.Now,
	}
	var milestones []Milestone

	for _, p := range rc.players {
		raw, err := playerStat(in.Snapshot, p.id, rc.stat)
		if err != nil {
			return Outcome{}, err
		}
		var base float64
		if rc.mode == ProgressStartingNow {
			v, ok := in.Baseline.Values[baselineKey(p.id)]
			if !ok {
				return Outcome{}, domain.Invalidf("baseline missing for player %s", p.id)
			}
			base = v
		}

		pp := domain.ParticipantProgress{Baseline: base}
		if in.Progress != nil {
			if prev, ok := in.Progress.Participants[p.id]; ok && prev.Reached {
				pp = prev
			}
		}
		pp.LastValue = raw

		metric := raw - base
		if !pp.Reached && metric >= rc.threshold {
			at := observed
			pp.Reached = true
			pp.ReachedAt = &at
			pp.MetricAtReach = metric
			pp.ValueAtReach = raw
			milestones = append(milestones, Milestone{
				Event: "threshold_reached",
				Detail: map[string]any{
					"player":    p.label(),
					"metric":    metric,
					"threshold": rc.threshold,
					"at":        at.Format(time.RFC3339Nano),
				},
			})
		}
		next.Participants[p.id] = pp
	}

	out, _ := decideRace(rc, next, in.Snapshot.Status.Final())
	out.Progress = next
	out.Milestones = milestones
	return out, nil
}

// decideRace applies the precedence: earlier reach, then higher frozen metric,
// then higher current raw value, then a tie.
func decideRace(rc raceConfig, pr *domain.ProgressRecord, final bool) (Outcome, error) {
	a := pr.Participants[rc.players[0].id]
	b := pr.Participants[rc.players[1].id]
	pa, pb := rc.players[0].label(), rc.players[1].label()

	switch {
	case a.Reached && b.Reached:
		switch {
		case a.ReachedAt.Before(*b.ReachedAt):
			return winner(pa, "reached threshold first")
		case b.ReachedAt.Before(*a.ReachedAt):
			return winner(pb, "reached threshold first")
		case a.MetricAtReach > b.MetricAtReach:
			return winner(pa, "higher value when threshold reached")
		case b.MetricAtReach > a.MetricAtReach:
			return winner(pb, "higher value when threshold reached")
		case a.LastValue > b.LastValue:
			return winner(pa, "higher current value")
		case b.LastValue > a.LastValue:
			return winner(pb, "higher current value")
		default:
			return wash("tie: both players reached the threshold together")
		}
	case a.Reached:
		return winner(pa, "reached threshold first")
	case b.Reached:
		return winner(pb, "reached threshold first")
	case final:
		return wash("neither player reached the threshold")
	default:
		return undecided()
	}
}

func (KingOfTheHill) ConfigSteps(snap *domain.GameSnapshot) []ConfigStep {
	var players []ConfigChoice
	for _, t := range snap.Teams {
		for _, p := range t.Players {
			players = append(players, ConfigChoice{
				ID:    p.AthleteID,
				Label: fmt.Sprintf("%s (%s)", p.FullName, t.Abbreviation),
			})
		}
	}
	return []ConfigStep{
		{Key: "player1_id", Prompt: "Pick the first player", Choices: players},
		{Key: "player2_id", Prompt: "Pick the second player", Choices: players},
		{Key: "stat", Prompt: "Pick the stat to race on", Choices: statChoices(snap)},
		{Key: "threshold", Prompt: "How much is needed to win?"},
		{Key: "progress_mode", Prompt: "Count from now or the whole game?", Choices: []ConfigChoice{
			{ID: ProgressStartingNow, Label: "Starting now"},
			{ID: ProgressCumulative, Label: "Whole game"},
		}},
	}
}
