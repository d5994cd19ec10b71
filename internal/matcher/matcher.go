// Package matcher decides whether a free-text question "is" one of the known
// questions, using character sequence similarity.
package matcher

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
)

// DefaultCutoff is the minimum similarity a candidate needs to count as a
// match.
const DefaultCutoff = 0.6

// Default is a Matcher using DefaultCutoff.
var Default = Matcher{Cutoff: DefaultCutoff}

// Matcher picks the single closest known question. The zero value has cutoff
// 0 and accepts any candidate; use New or Default.
type Matcher struct {
	Cutoff float64
}

// New returns a Matcher with the given cutoff, which must lie in [0, 1].
func New(cutoff float64) (Matcher, error) {
	if cutoff < 0 || cutoff > 1 {
		return Matcher{}, fmt.Errorf("cutoff must be in [0, 1], got %v", cutoff)
	}
	return Matcher{Cutoff: cutoff}, nil
}

// BestMatch returns the known question most similar to query whose score is
// at least the cutoff. Scoring is case-sensitive. On equal scores the
// candidate appearing first in known wins.
func (m Matcher) BestMatch(query string, known []string) (string, bool) {
	if len(known) == 0 {
		return "", false
	}

	// The query is the second sequence so its index is built only once.
	sm := difflib.NewMatcher(nil, chars(query))

	var (
		best      string
		bestScore float64
		found     bool
	)
	for _, candidate := range known {
		sm.SetSeq1(chars(candidate))
		// Cheap upper bounds first.
		if sm.RealQuickRatio() < m.Cutoff || sm.QuickRatio() < m.Cutoff {
			continue
		}
		score := sm.Ratio()
		if score < m.Cutoff {
			continue
		}
		if !found || score > bestScore {
			best, bestScore, found = candidate, score, true
		}
	}
	return best, found
}

// BestMatch uses the Default matcher.
func BestMatch(query string, known []string) (string, bool) {
	return Default.BestMatch(query, known)
}

// Score returns the similarity ratio of a and b in [0, 1]: twice the number
// of matched characters over the total length of both strings.
func Score(a, b string) float64 {
	return difflib.NewMatcher(chars(a), chars(b)).Ratio()
}

// chars splits s into one element per rune.
func chars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
