package modes

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

// TestTotalDisasterAgreesWithArithmetic: Over iff total > line, Under iff
// total < line, wash otherwise.
func TestTotalDisasterAgreesWithArithmetic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	m := TotalDisaster{}
	properties.Property("decision follows the sign of total-line", prop.ForAll(
		func(home, away int, halfLines int) bool {
			line := float64(halfLines) / 2
			w := wager(m.Key(), map[string]any{"line": line})
			snap := game(domain.StatusFinal, t0, team("1", "A", float64(home)), team("2", "B", float64(away)))
			out, err := m.Evaluate(context.Background(), EvalInput{Wager: w, Snapshot: snap, Now: t0})
			if err != nil {
				return false
			}
			total := float64(home + away)
			switch {
			case total > line:
				return out.Decision == Winner && out.Choice == ChoiceOver
			case total < line:
				return out.Decision == Winner && out.Choice == ChoiceUnder
			default:
				return out.Decision == Wash
			}
		},
		gen.IntRange(0, 80),
		gen.IntRange(0, 80),
		gen.IntRange(0, 200),
	))

	properties.TestingRun(t)
}

// TestGiveAndTakeIsSymmetric: flipping the named side and the spread sign
// never changes who wins.
func TestGiveAndTakeIsSymmetric(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	m := GiveAndTake{}
	properties.Property("mirror configuration picks the same side", prop.ForAll(
		func(a, b int, halfSpread int) bool {
			spread := float64(halfSpread) / 2
			snap := game(domain.StatusFinal, t0, team("1", "A", float64(a)), team("2", "B", float64(b)))
			fwd := map[string]any{"team_id": "1", "team_name": "A", "opponent_id": "2", "opponent_name": "B", "spread": spread}
			rev := map[string]any{"team_id": "2", "team_name": "B", "opponent_id": "1", "opponent_name": "A", "spread": -spread}

			o1, err1 := m.Evaluate(context.Background(), EvalInput{Wager: wager(m.Key(), fwd), Snapshot: snap, Now: t0})
			o2, err2 := m.Evaluate(context.Background(), EvalInput{Wager: wager(m.Key(), rev), Snapshot: snap, Now: t0})
			if err1 != nil || err2 != nil {
				return false
			}
			if o1.Decision != o2.Decision {
				return false
			}
			return o1.Decision == Wash || o1.Choice == o2.Choice
		},
		gen.IntRange(0, 60),
		gen.IntRange(0, 60),
		gen.IntRange(-40, 40),
	))

	properties.TestingRun(t)
}
