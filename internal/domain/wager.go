package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// League identifies a sports league. LeagueAny is the wildcard used by modes
// that work everywhere.
type League string

const (
	LeagueNFL League = "NFL"
	LeagueNBA League = "NBA"
	LeagueMLB League = "MLB"
	LeagueNHL League = "NHL"
	LeagueAny League = "*"
)

// ParseLeague normalises user input such as "nfl" into a League.
func ParseLeague(s string) League {
	s = strings.TrimSpace(s)
	if s == string(LeagueAny) {
		return LeagueAny
	}
	return League(strings.ToUpper(s))
}

// LeagueSet is the set of leagues a mode supports.
type LeagueSet []League

// Contains reports whether l is supported, honouring the wildcard.
func (s LeagueSet) Contains(l League) bool {
	for _, x := range s {
		if x == LeagueAny || x == l {
			return true
		}
	}
	return false
}

// WagerStatus is the lifecycle state of a wager.
type WagerStatus string

const (
	WagerActive   WagerStatus = "active"
	WagerPending  WagerStatus = "pending"
	WagerResolved WagerStatus = "resolved"
	WagerWashed   WagerStatus = "washed"
)

// Terminal reports whether no further transitions are possible.
func (s WagerStatus) Terminal() bool {
	return s == WagerResolved || s == WagerWashed
}

// Wager is a proposition among participants on a live game.
type Wager struct {
	ID            string
	EventID       string
	League        League
	ModeKey       string
	Config        map[string]any
	Status        WagerStatus
	CloseTime     time.Time
	WinningChoice *string
	WashReason    *string
	ResolvedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Resolution is the terminal outcome applied to a pending wager.
type Resolution struct {
	WagerID    string
	Status     WagerStatus // WagerResolved or WagerWashed
	Choice     string
	Reason     string
	ResolvedAt time.Time
}

// HistoryRecord is one append-only line in a wager's audit trail.
type HistoryRecord struct {
	ID        string
	WagerID   string
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// History event names.
const (
	HistoryLocked    = "locked"
	HistoryResolved  = "resolved"
	HistoryWashed    = "washed"
	HistoryMilestone = "milestone"
)

// Baseline is the metric snapshot captured when a wager locks. It is written
// once and never modified.
type Baseline struct {
	WagerID    string
	Values     map[string]float64
	Labels     map[string]string
	CapturedAt time.Time
}

// ParticipantProgress tracks one side of a progress race.
type ParticipantProgress struct {
	Baseline      float64    `json:"baseline"`
	LastValue     float64    `json:"last_value"`
	Reached       bool       `json:"reached"`
	ReachedAt     *time.Time `json:"reached_at,omitempty"`
	MetricAtReach float64    `json:"metric_at_reach"`
	ValueAtReach  float64    `json:"value_at_reach"`
}

// FrozenDecision is the first verdict an evaluator reached for a wager.
// Once stored it is never replaced, so later snapshots cannot contradict it.
type FrozenDecision struct {
	Decision  string    `json:"decision"` // winner or wash
	Choice    string    `json:"choice,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

// ProgressRecord is the mutable per-wager progress state.
type ProgressRecord struct {
	WagerID      string                         `json:"wager_id"`
	Participants map[string]ParticipantProgress `json:"participants"`
	Decision     *FrozenDecision                `json:"decision,omitempty"`
	UpdatedAt    time.Time                      `json:"updated_at"`
}

// ConfigString reads a string field from a wager config.
func ConfigString(cfg map[string]any, key string) string {
	switch v := cfg[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// ConfigFloat reads a numeric field from a wager config. Numeric strings are
// accepted because configs arrive from JSON forms.
func ConfigFloat(cfg map[string]any, key string) (float64, bool) {
	return toFloat(cfg[key])
}

// ConfigStrings reads a list of strings from a wager config.
func ConfigStrings(cfg map[string]any, key string) []string {
	switch v := cfg[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := x.(string); ok {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	default:
		return nil
	}
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case string:
		var err error
		if f, err = strconv.ParseFloat(strings.TrimSpace(n), 64); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// AsFloat converts a decoded JSON stat value to a number.
func AsFloat(v any) (float64, bool) { return toFloat(v) }
