// Package acoustic measures acoustic divergence between two recordings by
// dynamic time warping over their feature sequences.
//
// The [Aligner] builds the classic (n+1)×(m+1) DTW cost lattice with
// Euclidean local distance and insertion, deletion and match moves. Only two
// lattice rows are kept alive at a time, sized by the shorter sequence, so
// memory is O(min(n,m)) while time stays O(n·m·D).
//
// The result is normalised by max(n,m): 0 means identical sequences and the
// value grows without bound as the recordings diverge.
//
// An Aligner is read-only after construction and safe for concurrent use.
package acoustic

import (
	"context"
	"math"

	"github.com/MrWong99/tartil/pkg/types"
)

// EmptySequenceDistance is returned when exactly one of the two sequences is
// empty. There is no valid warping path in that case; 1.0 is the distance at
// which the acoustic term of the overall score reaches zero, so an empty
// recording can never earn acoustic credit.
const EmptySequenceDistance = 1.0

const component = "dtw"

// Option is a functional option for configuring an [Aligner].
type Option func(*Aligner)

// WithMaxLength bounds the number of frames accepted per sequence. Longer
// inputs are rejected with an [types.InputError] before any lattice work is
// done. Zero disables the bound.
func WithMaxLength(n int) Option {
	return func(a *Aligner) {
		a.maxLength = n
	}
}

// Aligner computes normalised DTW distances.
type Aligner struct {
	maxLength int
}

// New returns an [Aligner] configured with the supplied options.
func New(opts ...Option) *Aligner {
	a := &Aligner{}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Distance returns the DTW distance between a and b divided by
// max(len(a), len(b)).
//
// Policies:
//   - both sequences empty → 0
//   - exactly one empty → [EmptySequenceDistance]
//   - ragged or mismatched vector dimensions → [types.InputError]
//   - NaN or infinite vector components → [types.InputError]
//   - a sequence longer than the configured bound → [types.InputError]
//
// ctx is checked once per lattice row; a cancelled context aborts the
// computation and its error is returned.
func (a *Aligner) Distance(ctx context.Context, x, y types.FeatureSequence) (float64, error) {
	n, m := x.Len(), y.Len()
	if n == 0 && m == 0 {
		return 0, nil
	}
	if a.maxLength > 0 && (n > a.maxLength || m > a.maxLength) {
		return 0, types.NewInputError(component, "sequence length %d exceeds limit %d", max(n, m), a.maxLength)
	}
	if n == 0 || m == 0 {
		return EmptySequenceDistance, nil
	}
	if err := checkDimensions(x.Vectors, y.Vectors); err != nil {
		return 0, err
	}

	// Iterate rows over the longer sequence so the rolling rows are sized by
	// the shorter one. Transposing the lattice swaps insertion and deletion
	// moves, which leaves the optimal path cost unchanged.
	rows, cols := x.Vectors, y.Vectors
	if len(cols) > len(rows) {
		rows, cols = cols, rows
	}

	prev := make([]float64, len(cols)+1)
	curr := make([]float64, len(cols)+1)
	prev[0] = 0
	for j := 1; j <= len(cols); j++ {
		prev[j] = math.Inf(1)
	}

	for i := 1; i <= len(rows); i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		curr[0] = math.Inf(1)
		for j := 1; j <= len(cols); j++ {
			best := prev[j] // insertion
			if curr[j-1] < best {
				best = curr[j-1] // deletion
			}
			if prev[j-1] < best {
				best = prev[j-1] // match
			}
			curr[j] = euclidean(rows[i-1], cols[j-1]) + best
		}
		prev, curr = curr, prev
	}

	return prev[len(cols)] / float64(max(n, m)), nil
}

// checkDimensions verifies every vector in both sequences has the same
// non-zero dimension and holds only finite values.
func checkDimensions(x, y [][]float64) error {
	dim := len(x[0])
	if dim == 0 {
		return types.NewInputError(component, "feature vectors must not be empty")
	}
	for _, s := range []struct {
		name    string
		vectors [][]float64
	}{{"first", x}, {"second", y}} {
		for i, v := range s.vectors {
			if len(v) != dim {
				return types.NewInputError(component, "%s sequence frame %d has dimension %d, want %d", s.name, i, len(v), dim)
			}
			for k, f := range v {
				if math.IsNaN(f) || math.IsInf(f, 0) {
					return types.NewInputError(component, "%s sequence frame %d holds %v at index %d", s.name, i, f, k)
				}
			}
		}
	}
	return nil
}

// euclidean returns the L2 distance between two equal-length vectors.
func euclidean(a, b []float64) float64 {
	var sum float64
	for k := range a {
		d := a[k] - b[k]
		sum += d * d
	}
	return math.Sqrt(sum)
}
