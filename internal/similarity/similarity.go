// Package similarity scores how alike two strings are on a 0-100 scale.
package similarity

import (
	"github.com/agext/levenshtein"
)

// DefaultThreshold is the score at or above which two entries are duplicates
const DefaultThreshold = 85.0

// Scorer computes a similarity score between 0 (nothing in common) and 100 (identical)
type Scorer interface {
	Score(a, b string) float64
}

// Func adapts an ordinary function to the Scorer interface
type Func func(a, b string) float64

// Score calls f(a, b)
func (f Func) Score(a, b string) float64 {
	return f(a, b)
}

// Levenshtein scores strings by normalized edit distance
type Levenshtein struct {
	params *levenshtein.Params
}

// NewLevenshtein creates a Levenshtein scorer with unit edit costs
func NewLevenshtein() *Levenshtein {
	return &Levenshtein{params: levenshtein.NewParams()}
}

// Score returns (1 - distance/maxLen) * 100, computed over runes
func (l *Levenshtein) Score(a, b string) float64 {
	if a == b {
		return 100
	}
	return levenshtein.Similarity(a, b, l.params) * 100
}

// Default returns the scorer used when none is configured
func Default() Scorer {
	return NewLevenshtein()
}

// IsDuplicate reports whether a and b score at or above threshold
func IsDuplicate(s Scorer, a, b string, threshold float64) bool {
	return s.Score(a, b) >= threshold
}
