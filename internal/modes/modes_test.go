package modes

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

var t0 = time.Date(2026, 10, 18, 18, 0, 0, 0, time.UTC)

func game(status domain.GameStatus, at time.Time, teams ...domain.TeamLine) *domain.GameSnapshot {
	return &domain.GameSnapshot{EventID: "401", GeneratedAt: at, Status: status, Teams: teams}
}

func team(id, abbr string, score float64) domain.TeamLine {
	return domain.TeamLine{TeamID: id, Abbreviation: abbr, Score: score, Stats: domain.StatBlock{}}
}

func withPlayer(t domain.TeamLine, id, name string, yards float64) domain.TeamLine {
	t.Players = append(t.Players, domain.PlayerLine{
		AthleteID: id,
		FullName:  name,
		Stats:     domain.StatBlock{"rushing": {"rushingYards": yards}},
	})
	return t
}

func wager(mode string, cfg map[string]any) domain.Wager {
	return domain.Wager{ID: "w1", EventID: "401", League: domain.LeagueNFL, ModeKey: mode, Config: cfg, Status: domain.WagerPending}
}

// ── registry ──

func TestRegistryLookup(t *testing.T) {
	r := NewDefaultRegistry()

	m, err := r.Lookup(domain.LeagueNFL, "choose_their_fate")
	require.NoError(t, err)
	assert.Equal(t, "Choose Their Fate", m.Label())

	_, err = r.Lookup(domain.LeagueNBA, "choose_their_fate")
	var le *LookupError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ReasonLeagueNotSupported, le.Reason)
	assert.ErrorIs(t, err, domain.ErrLeagueUnsupported)

	_, err = r.Lookup(domain.LeagueNFL, "nope")
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ReasonNotFound, le.Reason)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// wildcard modes accept any league
	_, err = r.Lookup(domain.League("CFL"), "total_disaster")
	assert.NoError(t, err)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(TableTalk{}))
	assert.ErrorIs(t, r.Register(TableTalk{}), domain.ErrAlreadyExists)
}

func TestRegistryListIsSortedAndFiltered(t *testing.T) {
	r := NewDefaultRegistry()
	var keys []string
	for _, m := range r.List(domain.LeagueNBA) {
		keys = append(keys, m.Key())
	}
	assert.Equal(t, []string{"give_and_take", "king_of_the_hill", "scorcerer", "table_talk", "total_disaster"}, keys)
	assert.Len(t, r.List(domain.LeagueAny), 6)
}

func TestOverviewMarksManualModes(t *testing.T) {
	assert.True(t, OverviewOf(TableTalk{}).Manual)
	assert.False(t, OverviewOf(Scorcerer{}).Manual)
	assert.True(t, IsManual(TableTalk{}))
}

// ── king of the hill ──

func raceCfg(mode string) map[string]any {
	return map[string]any{
		"player1_id": "p1", "player1_name": "Allen",
		"player2_id": "p2", "player2_name": "Cook",
		"stat": "rushing.rushingYards", "threshold": 80.0, "progress_mode": mode,
	}
}

func raceSnap(at time.Time, status domain.GameStatus, y1, y2 float64) *domain.GameSnapshot {
	return game(status, at,
		withPlayer(team("1", "BUF", 0), "p1", "Josh Allen", y1),
		withPlayer(team("2", "MIA", 0), "p2", "James Cook", y2),
	)
}

func TestKingOfTheHillStartingNowRace(t *testing.T) {
	ctx := context.Background()
	m := KingOfTheHill{}
	w := wager(m.Key(), raceCfg(ProgressStartingNow))

	base, err := m.CaptureBaseline(w, raceSnap(t0, domain.StatusInProgress, 35, 20), t0)
	require.NoError(t, err)
	assert.Equal(t, 35.0, base.Values["player:p1"])
	assert.Equal(t, 20.0, base.Values["player:p2"])

	// P1 delta 45, P2 delta 60: nobody there yet
	out, err := m.Evaluate(ctx, EvalInput{Wager: w, Snapshot: raceSnap(t0.Add(time.Minute), domain.StatusInProgress, 80, 80), Baseline: &base, Now: t0})
	require.NoError(t, err)
	assert.Equal(t, Undecided, out.Decision)
	require.NotNil(t, out.Progress)
	assert.False(t, out.Progress.Participants["p1"].Reached)
	assert.Equal(t, 80.0, out.Progress.Participants["p2"].LastValue)

	// P1 reaches 80 over baseline at T1
	t1 := t0.Add(5 * time.Minute)
	out, err = m.Evaluate(ctx, EvalInput{Wager: w, Snapshot: raceSnap(t1, domain.StatusInProgress, 115, 90), Baseline: &base, Progress: out.Progress, Now: t1})
	require.NoError(t, err)
	assert.Equal(t, Winner, out.Decision)
	assert.Equal(t, "Allen", out.Choice)
	p1 := out.Progress.Participants["p1"]
	require.NotNil(t, p1.ReachedAt)
	assert.True(t, p1.ReachedAt.Equal(t1))
	assert.Equal(t, 80.0, p1.MetricAtReach)
	require.Len(t, out.Milestones, 1)
}

func TestKingOfTheHillFrozenReachSurvivesLaterSnapshots(t *testing.T) {
	m := KingOfTheHill{}
	w := wager(m.Key(), raceCfg(ProgressCumulative))
	t1, t2 := t0, t0.Add(time.Minute)
	prev := &domain.ProgressRecord{WagerID: "w1", Participants: map[string]domain.ParticipantProgress{
		"p1": {Reached: true, ReachedAt: &t2, MetricAtReach: 81, ValueAtReach: 81},
	}}
	// P2 reaches at t1 in this snapshot, but p1's stored reach at t2 stays frozen
	out, err := m.Evaluate(context.Background(), EvalInput{Wager: w, Snapshot: raceSnap(t1, domain.StatusInProgress, 50, 85), Progress: prev, Now: t1})
	require.NoError(t, err)
	assert.Equal(t, Winner, out.Decision)
	assert.Equal(t, "Cook", out.Choice)
	assert.Equal(t, 81.0, out.Progress.Participants["p1"].MetricAtReach)
	assert.Equal(t, 50.0, out.Progress.Participants["p1"].LastValue)
}

func TestKingOfTheHillTieBreaks(t *testing.T) {
	m := KingOfTheHill{}
	tests := []struct {
		name       string
		y1, y2     float64
		wantChoice string
		wantWash   bool
	}{
		{name: "higher frozen metric", y1: 95, y2: 90, wantChoice: "Allen"},
		{name: "other side higher", y1: 84, y2: 101, wantChoice: "Cook"},
		{name: "exact tie washes", y1: 90, y2: 90, wantWash: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := wager(m.Key(), raceCfg(ProgressCumulative))
			out, err := m.Evaluate(context.Background(), EvalInput{Wager: w, Snapshot: raceSnap(t0, domain.StatusInProgress, tc.y1, tc.y2), Now: t0})
			require.NoError(t, err)
			if tc.wantWash {
				assert.Equal(t, Wash, out.Decision)
				assert.Contains(t, out.Reason, "tie")
				return
			}
			assert.Equal(t, Winner, out.Decision)
			assert.Equal(t, tc.wantChoice, out.Choice)
		})
	}
}

func TestKingOfTheHillRawValueBreaksEqualMetrics(t *testing.T) {
	m := KingOfTheHill{}
	w := wager(m.Key(), raceCfg(ProgressStartingNow))
	base := &domain.Baseline{Values: map[string]float64{"player:p1": 10, "player:p2": 0}}
	// both deltas are 80 at the same instant, P1's raw total is higher
	out, err := m.Evaluate(context.Background(), EvalInput{Wager: w, Snapshot: raceSnap(t0, domain.StatusInProgress, 90, 80), Baseline: base, Now: t0})
	require.NoError(t, err)
	assert.Equal(t, Winner, out.Decision)
	assert.Equal(t, "Allen", out.Choice)
	assert.Equal(t, "higher current value", out.Reason)
}

func TestKingOfTheHillWashesWhenNobodyReachesByFinal(t *testing.T) {
	m := KingOfTheHill{}
	w := wager(m.Key(), raceCfg(ProgressCumulative))
	out, err := m.Evaluate(context.Background(), EvalInput{Wager: w, Snapshot: raceSnap(t0, domain.StatusFinal, 40, 70), Now: t0})
	require.NoError(t, err)
	assert.Equal(t, Wash, out.Decision)
}

func TestKingOfTheHillValidation(t *testing.T) {
	m := KingOfTheHill{}
	snap := raceSnap(t0, domain.StatusInProgress, 0, 0)

	bad := raceCfg(ProgressStartingNow)
	bad["stat"] = "rushingYards"
	_, err := m.Evaluate(context.Background(), EvalInput{Wager: wager(m.Key(), bad), Snapshot: snap, Baseline: &domain.Baseline{}, Now: t0})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = m.Evaluate(context.Background(), EvalInput{Wager: wager(m.Key(), raceCfg(ProgressStartingNow)), Snapshot: snap, Now: t0})
	reason, ok := domain.ValidationReason(err)
	require.True(t, ok)
	assert.Equal(t, "baseline missing", reason)

	missing := raceCfg(ProgressCumulative)
	missing["player2_id"] = "p9"
	_, err = m.Evaluate(context.Background(), EvalInput{Wager: wager(m.Key(), missing), Snapshot: snap, Now: t0})
	assert.ErrorIs(t, err, domain.ErrValidation)

	noID := raceCfg(ProgressCumulative)
	delete(noID, "player1_id")
	assert.ErrorIs(t, m.Validate(noID), domain.ErrValidation)
}

func TestKingOfTheHillUnknownStat(t *testing.T) {
	m := KingOfTheHill{}
	cfg := raceCfg(ProgressCumulative)
	cfg["stat"] = "bogus.nothing"

	_, err := m.Evaluate(context.Background(), EvalInput{Wager: wager(m.Key(), cfg), Snapshot: raceSnap(t0, domain.StatusInProgress, 10, 20), Now: t0})
	reason, ok := domain.ValidationReason(err)
	require.True(t, ok)
	assert.Equal(t, "stat bogus.nothing not reported", reason)

	_, err = m.CaptureBaseline(wager(m.Key(), cfg), raceSnap(t0, domain.StatusInProgress, 10, 20), t0)
	assert.ErrorIs(t, err, domain.ErrValidation)

	// a player who has not recorded the stat yet starts from zero
	snap := game(domain.StatusInProgress, t0,
		withPlayer(team("1", "BUF", 0), "p1", "Josh Allen", 12),
		team("2", "MIA", 0),
	)
	snap.Teams[1].Players = []domain.PlayerLine{{AthleteID: "p2", FullName: "James Cook", Stats: domain.StatBlock{}}}
	out, err := m.Evaluate(context.Background(), EvalInput{Wager: wager(m.Key(), raceCfg(ProgressCumulative)), Snapshot: snap, Now: t0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, out.Progress.Participants["p2"].LastValue)
	assert.Equal(t, 12.0, out.Progress.Participants["p1"].LastValue)
}

func TestNonFiniteThresholdRejected(t *testing.T) {
	m := KingOfTheHill{}
	for _, v := range []any{"NaN", "Inf", "-Inf"} {
		cfg := raceCfg(ProgressCumulative)
		cfg["threshold"] = v
		assert.ErrorIs(t, m.Validate(cfg), domain.ErrValidation, "threshold %v", v)
	}
	line := TotalDisaster{}.Validate(map[string]any{"line": "NaN"})
	assert.ErrorIs(t, line, domain.ErrValidation)
}

// ── total disaster ──

func TestTotalDisaster(t *testing.T) {
	m := TotalDisaster{}
	w := wager(m.Key(), map[string]any{"line": 47.5})
	tests := []struct {
		home, away float64
		status     domain.GameStatus
		decision   Decision
		choice     string
	}{
		{home: 24, away: 23.5, status: domain.StatusFinal, decision: Wash},
		{home: 31, away: 21, status: domain.StatusFinal, decision: Winner, choice: ChoiceOver},
		{home: 20, away: 20, status: domain.StatusFinal, decision: Winner, choice: ChoiceUnder},
		{home: 40, away: 30, status: domain.StatusInProgress, decision: Undecided},
	}
	for _, tc := range tests {
		out, err := m.Evaluate(context.Background(), EvalInput{Wager: w, Snapshot: game(tc.status, t0, team("1", "A", tc.home), team("2", "B", tc.away)), Now: t0})
		require.NoError(t, err)
		assert.Equal(t, tc.decision, out.Decision, "%g+%g", tc.home, tc.away)
		assert.Equal(t, tc.choice, out.Choice)
	}

	_, err := m.Evaluate(context.Background(), EvalInput{Wager: wager(m.Key(), map[string]any{}), Snapshot: game(domain.StatusFinal, t0), Now: t0})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

// ── scorcerer ──

func scorcererCfg() map[string]any {
	return map[string]any{"team1_id": "1", "team1_name": "Home", "team2_id": "2", "team2_name": "Away"}
}

func TestScorcerer(t *testing.T) {
	ctx := context.Background()
	m := Scorcerer{}
	w := wager(m.Key(), scorcererCfg())
	base, err := m.CaptureBaseline(w, game(domain.StatusInProgress, t0, team("1", "H", 7), team("2", "A", 3)), t0)
	require.NoError(t, err)

	out, err := m.Evaluate(ctx, EvalInput{Wager: w, Baseline: &base, Snapshot: game(domain.StatusInProgress, t0, team("1", "H", 10), team("2", "A", 6)), Now: t0})
	require.NoError(t, err)
	assert.Equal(t, Wash, out.Decision)
	assert.Contains(t, out.Reason, "simultaneous")

	out, err = m.Evaluate(ctx, EvalInput{Wager: w, Baseline: &base, Snapshot: game(domain.StatusInProgress, t0, team("1", "H", 7), team("2", "A", 10)), Now: t0})
	require.NoError(t, err)
	assert.Equal(t, Winner, out.Decision)
	assert.Equal(t, "Away", out.Choice)

	out, err = m.Evaluate(ctx, EvalInput{Wager: w, Baseline: &base, Snapshot: game(domain.StatusInProgress, t0, team("1", "H", 7), team("2", "A", 3)), Now: t0})
	require.NoError(t, err)
	assert.Equal(t, Undecided, out.Decision)

	out, err = m.Evaluate(ctx, EvalInput{Wager: w, Baseline: &base, Snapshot: game(domain.StatusFinal, t0, team("1", "H", 7), team("2", "A", 3)), Now: t0})
	require.NoError(t, err)
	assert.Equal(t, Wash, out.Decision)
	assert.Equal(t, "no further scoring", out.Reason)

	_, err = m.Evaluate(ctx, EvalInput{Wager: w, Snapshot: game(domain.StatusFinal, t0), Now: t0})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

// ── give and take ──

func TestGiveAndTake(t *testing.T) {
	m := GiveAndTake{}
	cfg := map[string]any{"team_id": "1", "team_name": "KC", "opponent_id": "2", "opponent_name": "LV", "spread": -3.5}
	w := wager(m.Key(), cfg)
	assert.Equal(t, []string{"KC -3.5", "LV +3.5"}, m.Options(cfg))

	out, err := m.Evaluate(context.Background(), EvalInput{Wager: w, Snapshot: game(domain.StatusFinal, t0, team("1", "KC", 27), team("2", "LV", 24)), Now: t0})
	require.NoError(t, err)
	assert.Equal(t, "LV +3.5", out.Choice)

	out, err = m.Evaluate(context.Background(), EvalInput{Wager: w, Snapshot: game(domain.StatusFinal, t0, team("1", "KC", 28), team("2", "LV", 24)), Now: t0})
	require.NoError(t, err)
	assert.Equal(t, "KC -3.5", out.Choice)

	cfg["spread"] = -3
	out, err = m.Evaluate(context.Background(), EvalInput{Wager: wager(m.Key(), cfg), Snapshot: game(domain.StatusFinal, t0, team("1", "KC", 27), team("2", "LV", 24)), Now: t0})
	require.NoError(t, err)
	assert.Equal(t, Wash, out.Decision)
	assert.Contains(t, out.Reason, "push")
}

// ── choose their fate ──

func fateTeam(id string, possession bool, td, fg, sf, punts float64) domain.TeamLine {
	t := team(id, "T"+id, 0)
	t.Possession = possession
	t.Stats = domain.StatBlock{
		"scoring": {"touchdowns": td, "fieldGoals": fg, "safeties": sf},
		"punting": {"punts": punts},
	}
	return t
}

func TestChooseTheirFateClassification(t *testing.T) {
	m := ChooseTheirFate{}
	w := wager(m.Key(), map[string]any{})
	lock := game(domain.StatusInProgress, t0, fateTeam("1", true, 1, 1, 0, 2), fateTeam("2", false, 2, 0, 0, 1))
	base, err := m.CaptureBaseline(w, lock, t0)
	require.NoError(t, err)
	assert.Equal(t, "1", base.Labels["team_id"])

	tests := []struct {
		name   string
		own    domain.TeamLine
		opp    domain.TeamLine
		status domain.GameStatus
		want   string
	}{
		{name: "touchdown", own: fateTeam("1", false, 2, 1, 0, 2), opp: fateTeam("2", true, 2, 0, 0, 1), want: FateTouchdown},
		{name: "field goal", own: fateTeam("1", false, 1, 2, 0, 2), opp: fateTeam("2", true, 2, 0, 0, 1), want: FateFieldGoal},
		{name: "safety", own: fateTeam("1", true, 1, 1, 0, 2), opp: fateTeam("2", false, 2, 0, 1, 1), want: FateSafety},
		{name: "punt", own: fateTeam("1", false, 1, 1, 0, 3), opp: fateTeam("2", true, 2, 0, 0, 1), want: FatePunt},
		{name: "turnover by possession", own: fateTeam("1", false, 1, 1, 0, 2), opp: fateTeam("2", true, 2, 0, 0, 1), want: FateTurnover},
		{name: "pick six", own: fateTeam("1", false, 1, 1, 0, 2), opp: fateTeam("2", false, 3, 0, 0, 1), want: FateTurnover},
		{name: "still driving", own: fateTeam("1", true, 1, 1, 0, 2), opp: fateTeam("2", false, 2, 0, 0, 1)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status := tc.status
			if status == "" {
				status = domain.StatusInProgress
			}
			out, err := m.Evaluate(context.Background(), EvalInput{Wager: w, Baseline: &base, Snapshot: game(status, t0, tc.own, tc.opp), Now: t0})
			require.NoError(t, err)
			if tc.want == "" {
				assert.Equal(t, Undecided, out.Decision)
				return
			}
			assert.Equal(t, Winner, out.Decision)
			assert.Equal(t, tc.want, out.Choice)
		})
	}

	out, err := m.Evaluate(context.Background(), EvalInput{Wager: w, Baseline: &base, Snapshot: game(domain.StatusFinal, t0, fateTeam("1", true, 1, 1, 0, 2), fateTeam("2", false, 2, 0, 0, 1)), Now: t0})
	require.NoError(t, err)
	assert.Equal(t, Wash, out.Decision)
}

func TestChooseTheirFateNeedsPossession(t *testing.T) {
	m := ChooseTheirFate{}
	_, err := m.CaptureBaseline(wager(m.Key(), map[string]any{}), game(domain.StatusInProgress, t0, fateTeam("1", false, 0, 0, 0, 0), fateTeam("2", false, 0, 0, 0, 0)), t0)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

// ── table talk ──

func TestTableTalkValidate(t *testing.T) {
	m := TableTalk{}
	assert.NoError(t, m.Validate(map[string]any{"options": []any{"Yes", "No"}}))
	assert.ErrorIs(t, m.Validate(map[string]any{"options": []any{"Yes"}}), domain.ErrValidation)
	assert.ErrorIs(t, m.Validate(map[string]any{"options": []string{"Yes", "Yes"}}), domain.ErrValidation)
}

func TestConfigStepsListPlayersAndStats(t *testing.T) {
	steps := KingOfTheHill{}.ConfigSteps(raceSnap(t0, domain.StatusInProgress, 1, 2))
	require.Len(t, steps, 5)
	assert.Len(t, steps[0].Choices, 2)
	assert.Equal(t, []ConfigChoice{{ID: "rushing.rushingYards", Label: "rushing.rushingYards"}}, steps[2].Choices)
}
