// Package scoring holds the placeholder answer-quality heuristic.
//
// The score is a length proxy, not a semantic judgment: ten words earn one
// point, capped at MaxScore.
package scoring

import (
	"math"
	"strings"
)

const (
	MaxScore     = 10.0
	WordsPerUnit = 10.0
)

// Score maps feedback or transcript text to a value in [0, MaxScore],
// rounded to one decimal.
func Score(text string) float64 {
	s := float64(WordCount(text)) / WordsPerUnit
	if s > MaxScore {
		s = MaxScore
	}
	return Round1(s)
}

// WordCount splits on any whitespace; blank input has zero words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
