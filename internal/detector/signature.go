// Package detector turns a stream of refined game snapshots into evaluation
// triggers, skipping snapshots that carry no resolution-relevant change.
package detector

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

// signatureDomain versions the canonical encoding.
const signatureDomain = "betresolver/snapshot/v1"

// Signature returns the canonical hash of the parts of snap that evaluation
// depends on: status, period, and sorted per-team and per-player tuples.
// Timestamps and the source label are ignored, so a re-published snapshot
// with identical data hashes the same.
func Signature(snap *domain.GameSnapshot) string {
	var lines []string

	period := ""
	if snap.Period != nil {
		period = strconv.Itoa(*snap.Period)
	}
	header := fmt.Sprintf("S|%s|%s", snap.Status, period)

	for _, t := range snap.Teams {
		lines = append(lines, fmt.Sprintf("T|%s|%s|%t|%s",
			t.TeamID, num(t.Score), t.Possession, flatten(t.Stats)))
		for _, p := range t.Players {
			lines = append(lines, fmt.Sprintf("P|%s|%s|%s", t.TeamID, p.AthleteID, flatten(p.Stats)))
		}
	}
	sort.Strings(lines)

	h := sha256.New()
	h.Write([]byte(signatureDomain))
	h.Write([]byte{0x00})
	h.Write([]byte(header))
	for _, l := range lines {
		h.Write([]byte{'\n'})
		h.Write([]byte(l))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// flatten renders stats as sorted "cat.key=value" pairs.
func flatten(stats domain.StatBlock) string {
	pairs := make([]string, 0, len(stats)*4)
	for cat, keys := range stats {
		for key, v := range keys {
			pairs = append(pairs, cat+"."+key+"="+value(v))
		}
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func value(v any) string {
	if f, ok := domain.AsFloat(v); ok {
		return num(f)
	}
	return fmt.Sprint(v)
}

func num(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }
