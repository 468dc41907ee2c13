package modes

import (
	"github.com/alanyoungcy/betresolver/internal/domain"
)

// TableTalk is a free-form proposition settled by the participants. It has no
// evaluator; the wager waits in pending until a participant submits a choice.
//
// Config keys: options (at least two distinct strings), question.
type TableTalk struct{}

func (TableTalk) Key() string               { return "table_talk" }
func (TableTalk) Label() string             { return "Table Talk" }
func (TableTalk) Leagues() domain.LeagueSet { return domain.LeagueSet{domain.LeagueAny} }

func (t TableTalk) Overview() Overview {
	return Overview{
		Key:          t.Key(),
		Label:        t.Label(),
		Description:  "Write your own question. The table settles it.",
		Leagues:      t.Leagues(),
		ConfigFields: []string{"question", "options"},
	}
}

func (TableTalk) Options(cfg map[string]any) []string {
	return domain.ConfigStrings(cfg, "options")
}

func (TableTalk) WinningCondition(cfg map[string]any) string {
	if q := domain.ConfigString(cfg, "question"); q != "" {
		return q
	}
	return "Settled by the participants"
}

func (t TableTalk) Validate(cfg map[string]any) error {
	opts := t.Options(cfg)
	if len(opts) < 2 {
		return domain.Invalidf("at least two options are required")
	}
	seen := make(map[string]bool, len(opts))
	for _, o := range opts {
		if o == "" {
			return domain.Invalidf("options must not be empty")
		}
		if seen[o] {
			return domain.Invalidf("duplicate option %q", o)
		}
		seen[o] = true
	}
	return nil
}
