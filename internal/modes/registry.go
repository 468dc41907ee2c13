package modes

import (
	"fmt"
	"sort"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

// LookupReason says why a lookup failed.
type LookupReason string

const (
	ReasonNotFound           LookupReason = "not_found"
	ReasonLeagueNotSupported LookupReason = "league_not_supported"
)

// LookupError is returned by Registry.Lookup.
type LookupError struct {
	Key    string
	League domain.League
	Reason LookupReason
}

func (e *LookupError) Error() string {
	if e.Reason == ReasonLeagueNotSupported {
		return fmt.Sprintf("mode %q: league %s not supported", e.Key, e.League)
	}
	return fmt.Sprintf("mode %q: not registered", e.Key)
}

// Unwrap maps the reason onto the domain sentinels.
func (e *LookupError) Unwrap() error {
	if e.Reason == ReasonLeagueNotSupported {
		return domain.ErrLeagueUnsupported
	}
	return domain.ErrNotFound
}

// Registry maps mode keys to implementations. It is filled once at startup and
// read-only afterwards, so lookups need no locking.
type Registry struct {
	modes map[string]Mode
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{modes: make(map[string]Mode)}
}

// NewDefaultRegistry returns a registry holding every built-in mode.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, m := range []Mode{
		KingOfTheHill{},
		TotalDisaster{},
		Scorcerer{},
		GiveAndTake{},
		ChooseTheirFate{},
		TableTalk{},
	} {
		if err := r.Register(m); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds m. Registering a key twice is an error.
func (r *Registry) Register(m Mode) error {
	key := m.Key()
	if key == "" {
		return fmt.Errorf("modes: register: empty key")
	}
	if _, dup := r.modes[key]; dup {
		return fmt.Errorf("modes: register %q: %w", key, domain.ErrAlreadyExists)
	}
	r.modes[key] = m
	return nil
}

// Lookup returns the mode for key if it supports league.
func (r *Registry) Lookup(league domain.League, key string) (Mode, error) {
	m, ok := r.modes[key]
	if !ok {
		return nil, &LookupError{Key: key, League: league, Reason: ReasonNotFound}
	}
	if league != domain.LeagueAny && !m.Leagues().Contains(league) {
		return nil, &LookupError{Key: key, League: league, Reason: ReasonLeagueNotSupported}
	}
	return m, nil
}

// List returns every mode supporting league, sorted by key. LeagueAny lists
// them all.
func (r *Registry) List(league domain.League) []Mode {
	out := make([]Mode, 0, len(r.modes))
	for _, m := range r.modes {
		if league == domain.LeagueAny || m.Leagues().Contains(league) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// OverviewOf returns m's overview, synthesising one when m does not provide
// its own.
func OverviewOf(m Mode) Overview {
	if o, ok := m.(Overviewer); ok {
		ov := o.Overview()
		ov.Manual = IsManual(m)
		return ov
	}
	return Overview{
		Key:     m.Key(),
		Label:   m.Label(),
		Leagues: m.Leagues(),
		Manual:  IsManual(m),
	}
}

var (
	_ Evaluator         = KingOfTheHill{}
	_ Preparer          = KingOfTheHill{}
	_ UserConfigBuilder = KingOfTheHill{}
	_ Evaluator         = TotalDisaster{}
	_ Evaluator         = Scorcerer{}
	_ Preparer          = Scorcerer{}
	_ Evaluator         = GiveAndTake{}
	_ Evaluator         = ChooseTheirFate{}
	_ Preparer          = ChooseTheirFate{}
	_ Validator         = TableTalk{}
	_ Overviewer        = TableTalk{}
)
