package modes

import (
	"sort"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

func teamLabel(t *domain.TeamLine) string {
	switch {
	case t.Abbreviation != "":
		return t.Abbreviation
	case t.DisplayName != "":
		return t.DisplayName
	default:
		return t.TeamID
	}
}

// statChoices lists every player stat path present in the snapshot.
func statChoices(snap *domain.GameSnapshot) []ConfigChoice {
	seen := make(map[string]bool)
	for _, t := range snap.Teams {
		for _, p := range t.Players {
			for cat, keys := range p.Stats {
				for key := range keys {
					seen[cat+"."+key] = true
				}
			}
		}
	}
	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	out := make([]ConfigChoice, len(paths))
	for i, p := range paths {
		out[i] = ConfigChoice{ID: p, Label: p}
	}
	return out
}

func teamChoices(snap *domain.GameSnapshot) []ConfigChoice {
	out := make([]ConfigChoice, 0, len(snap.Teams))
	for i := range snap.Teams {
		t := &snap.Teams[i]
		out = append(out, ConfigChoice{ID: t.TeamID, Label: teamLabel(t)})
	}
	return out
}

func totalScore(snap *domain.GameSnapshot) float64 {
	var sum float64
	for _, t := range snap.Teams {
		sum += t.Score
	}
	return sum
}
