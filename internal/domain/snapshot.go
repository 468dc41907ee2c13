package domain

import (
	"strings"
	"time"
)

// GameStatus is the normalised game state reported by ingestion.
type GameStatus string

const (
	StatusScheduled  GameStatus = "STATUS_SCHEDULED"
	StatusInProgress GameStatus = "STATUS_IN_PROGRESS"
	StatusHalftime   GameStatus = "STATUS_HALFTIME"
	StatusEndPeriod  GameStatus = "STATUS_END_PERIOD"
	StatusFinal      GameStatus = "STATUS_FINAL"
	StatusUnknown    GameStatus = "STATUS_UNKNOWN"
)

// Final reports whether the game has ended.
func (s GameStatus) Final() bool {
	return s == StatusFinal
}

// StatBlock maps category -> key -> value. Values are numbers or numeric
// strings as produced by the refiner.
type StatBlock map[string]map[string]any

// Lookup resolves a "category.key" path.
func (b StatBlock) Lookup(path string) (float64, bool) {
	cat, key, ok := strings.Cut(path, ".")
	if !ok || cat == "" || key == "" {
		return 0, false
	}
	inner, ok := b[cat]
	if !ok {
		return 0, false
	}
	v, ok := inner[key]
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// PlayerLine is one athlete's box score within a team.
type PlayerLine struct {
	AthleteID string    `json:"athleteId"`
	FullName  string    `json:"fullName"`
	Position  string    `json:"position,omitempty"`
	Jersey    string    `json:"jersey,omitempty"`
	Stats     StatBlock `json:"stats"`
}

// TeamLine is one team's state within a snapshot.
type TeamLine struct {
	TeamID       string       `json:"teamId"`
	Abbreviation string       `json:"abbreviation"`
	DisplayName  string       `json:"displayName"`
	Score        float64      `json:"score"`
	Possession   bool         `json:"possession"`
	Stats        StatBlock    `json:"stats"`
	Players      []PlayerLine `json:"players"`
}

// GameSnapshot is the refined, normalised live state of one game.
type GameSnapshot struct {
	EventID     string     `json:"eventId"`
	GeneratedAt time.Time  `json:"generatedAt"`
	Source      string     `json:"source,omitempty"`
	Status      GameStatus `json:"status"`
	Period      *int       `json:"period,omitempty"`
	Clock       string     `json:"clock,omitempty"`
	Teams       []TeamLine `json:"teams"`
}

// Team returns the team with the given id.
func (s *GameSnapshot) Team(teamID string) (*TeamLine, bool) {
	for i := range s.Teams {
		if s.Teams[i].TeamID == teamID {
			return &s.Teams[i], true
		}
	}
	return nil, false
}

// Opponent returns the first team that is not teamID.
func (s *GameSnapshot) Opponent(teamID string) (*TeamLine, bool) {
	for i := range s.Teams {
		if s.Teams[i].TeamID != teamID {
			return &s.Teams[i], true
		}
	}
	return nil, false
}

// Player finds an athlete across both rosters.
func (s *GameSnapshot) Player(athleteID string) (*PlayerLine, *TeamLine, bool) {
	for i := range s.Teams {
		t := &s.Teams[i]
		for j := range t.Players {
			if t.Players[j].AthleteID == athleteID {
				return &t.Players[j], t, true
			}
		}
	}
	return nil, nil, false
}

// PossessionTeam returns the id of the team in possession, or "".
func (s *GameSnapshot) PossessionTeam() string {
	for _, t := range s.Teams {
		if t.Possession {
			return t.TeamID
		}
	}
	return ""
}

// ObservedAt is the timestamp used to order progress events.
func (s *GameSnapshot) ObservedAt(fallback time.Time) time.Time {
	if s.GeneratedAt.IsZero() {
		return fallback
	}
	return s.GeneratedAt
}
