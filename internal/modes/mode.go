// Package modes holds the catalogue of wager modes and their evaluators.
//
// Every mode implements Mode. Further behaviour is opt-in: a mode that can
// decide itself from game data implements Evaluator, one that needs lock-time
// state implements Preparer, and so on. Callers discover capabilities with a
// type assertion.
package modes

import (
	"context"
	"time"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

// Mode is the contract every registered wager mode satisfies.
type Mode interface {
	Key() string
	Label() string
	Leagues() domain.LeagueSet
	// Options lists the choices participants pick from.
	Options(cfg map[string]any) []string
	// WinningCondition is a human-readable sentence for the wager card.
	WinningCondition(cfg map[string]any) string
}

// Overview describes a mode for catalogue listings.
type Overview struct {
	Key          string           `json:"key"`
	Label        string           `json:"label"`
	Description  string           `json:"description"`
	Leagues      domain.LeagueSet `json:"leagues"`
	ConfigFields []string         `json:"config_fields"`
	Manual       bool             `json:"manual"`
}

// Overviewer supplies a richer description than Key/Label.
type Overviewer interface {
	Overview() Overview
}

// Validator checks a proposal's configuration before it is accepted.
type Validator interface {
	Validate(cfg map[string]any) error
}

// Preparer captures lock-time state that evaluation measures against.
type Preparer interface {
	CaptureBaseline(w domain.Wager, snap *domain.GameSnapshot, at time.Time) (domain.Baseline, error)
}

// Decision is the verdict of one evaluation.
type Decision int

const (
	Undecided Decision = iota
	Winner
	Wash
)

func (d Decision) String() string {
	switch d {
	case Winner:
		return "winner"
	case Wash:
		return "wash"
	default:
		return "undecided"
	}
}

// Milestone is a notable intermediate event worth recording in history.
type Milestone struct {
	Event  string
	Detail map[string]any
}

// EvalInput is what an evaluator sees.
type EvalInput struct {
	Wager    domain.Wager
	Snapshot *domain.GameSnapshot
	Baseline *domain.Baseline
	Progress *domain.ProgressRecord
	Now      time.Time
}

// Outcome is what an evaluator returns. Progress, when non-nil, replaces the
// stored progress record.
type Outcome struct {
	Decision   Decision
	Choice     string
	Reason     string
	Progress   *domain.ProgressRecord
	Milestones []Milestone
}

// Evaluator decides a wager from game data. Modes without an Evaluator are
// resolved manually.
type Evaluator interface {
	Evaluate(ctx context.Context, in EvalInput) (Outcome, error)
}

// ConfigChoice is one selectable value in a proposal wizard step.
type ConfigChoice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// ConfigStep is one wizard question.
type ConfigStep struct {
	Key     string         `json:"key"`
	Prompt  string         `json:"prompt"`
	Choices []ConfigChoice `json:"choices,omitempty"`
}

// UserConfigBuilder produces wizard steps from the live roster.
type UserConfigBuilder interface {
	ConfigSteps(snap *domain.GameSnapshot) []ConfigStep
}

// IsManual reports whether m has no automated evaluator.
func IsManual(m Mode) bool {
	_, ok := m.(Evaluator)
	return !ok
}

func undecided() (Outcome, error) { return Outcome{Decision: Undecided}, nil }

func winner(choice, reason string) (Outcome, error) {
	return Outcome{Decision: Winner, Choice: choice, Reason: reason}, nil
}

func wash(reason string) (Outcome, error) {
	return Outcome{Decision: Wash, Reason: reason}, nil
}
