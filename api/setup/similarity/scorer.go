// Package similarity scores reference-entity names against each other.
// All fuzzy matching in the rate import goes through Scorer so the
// threshold and the exact-match rule live in one place.
package similarity

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// DefaultThreshold is the minimum score (inclusive) for a candidate.
const DefaultThreshold = 85.0

type MatchType string

const (
	MatchExact   MatchType = "exact"
	MatchSimilar MatchType = "similar"
)

// Candidate is an existing reference row offered for comparison.
type Candidate struct {
	ID   int64
	Name string
}

// Match is a candidate that cleared the threshold.
type Match struct {
	EntityID   int64     `json:"entity_id"`
	EntityName string    `json:"entity_name"`
	Score      float64   `json:"similarity_score"`
	MatchType  MatchType `json:"match_type"`
}

func (m Match) Exact() bool { return m.MatchType == MatchExact }

// Normalize upper-cases, trims and collapses inner whitespace.
func Normalize(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

// Score returns a symmetric similarity percentage in [0, 100] between the
// normalized forms of a and b, based on rune-level edit distance.
func Score(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		return 100
	}
	maxLen := utf8.RuneCountInString(na)
	if n := utf8.RuneCountInString(nb); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(na, nb)
	return float64(maxLen-dist) * 100 / float64(maxLen)
}

type Scorer struct {
	Threshold float64
}

// NewScorer returns a scorer; a non-positive threshold means DefaultThreshold.
func NewScorer(threshold float64) *Scorer {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Scorer{Threshold: threshold}
}

func (s *Scorer) Meets(score float64) bool {
	return score >= s.Threshold
}

// Rank compares name against every candidate and returns those at or above
// the threshold, best first. Exact (normalized) matches score 100.
func (s *Scorer) Rank(name string, candidates []Candidate) []Match {
	target := Normalize(name)
	if target == "" {
		return nil
	}
	var matches []Match
	for _, c := range candidates {
		if Normalize(c.Name) == target {
			matches = append(matches, Match{EntityID: c.ID, EntityName: c.Name, Score: 100, MatchType: MatchExact})
			continue
		}
		score := Score(target, c.Name)
		if !s.Meets(score) {
			continue
		}
		matches = append(matches, Match{EntityID: c.ID, EntityName: c.Name, Score: score, MatchType: MatchSimilar})
	}
	sortMatches(matches)
	return matches
}

// sortMatches orders by score desc, exact before similar on ties, then by id.
func sortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].Exact() != matches[j].Exact() {
			return matches[i].Exact()
		}
		return matches[i].EntityID < matches[j].EntityID
	})
}
