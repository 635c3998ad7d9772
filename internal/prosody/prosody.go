// Package prosody compares the suprasegmental statistics of two recordings:
// pitch, intensity, duration and speech rate.
package prosody

import (
	"math"

	"github.com/MrWong99/tartil/pkg/types"
)

// Compare returns a similarity in [0,1] for every feature present in both
// summaries, keyed by the feature names declared in package types.
//
// The similarity of two values a and b is 1 - |a-b| / max(|a|,|b|), and 1
// when both are zero. Features missing from either summary, or holding NaN
// or an infinity, are left out of the result; they are never defaulted.
func Compare(user, reference types.ProsodySummary) map[string]float64 {
	ref := reference.Features()
	out := make(map[string]float64, len(ref))
	for name, a := range user.Features() {
		b, ok := ref[name]
		if !ok || !finite(a) || !finite(b) {
			continue
		}
		out[name] = Similarity(a, b)
	}
	return out
}

// Similarity returns the relative closeness of a and b in [0,1].
func Similarity(a, b float64) float64 {
	den := math.Max(math.Abs(a), math.Abs(b))
	if den == 0 {
		return 1
	}
	return clamp01(1 - math.Abs(a-b)/den)
}

// Mean averages the similarities. ok is false for an empty map.
func Mean(similarities map[string]float64) (mean float64, ok bool) {
	if len(similarities) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range similarities {
		sum += v
	}
	return sum / float64(len(similarities)), true
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
