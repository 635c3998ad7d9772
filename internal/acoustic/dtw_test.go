package acoustic

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/MrWong99/tartil/pkg/types"
)

func seq(vectors ...[]float64) types.FeatureSequence {
	return types.FeatureSequence{Vectors: vectors}
}

func TestDistance_IdenticalIsZero(t *testing.T) {
	t.Parallel()
	a := New()

	tests := []struct {
		name string
		s    types.FeatureSequence
	}{
		{"single frame", seq([]float64{1, 2, 3})},
		{"ramp", seq([]float64{0}, []float64{1}, []float64{2}, []float64{3})},
		{"mfcc-like", seq(
			[]float64{-312.5, 41.2, 7.7},
			[]float64{-298.1, 39.0, 9.3},
			[]float64{-301.4, 44.8, 5.1},
		)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := a.Distance(context.Background(), tt.s, tt.s)
			if err != nil {
				t.Fatalf("Distance: %v", err)
			}
			if got != 0 {
				t.Errorf("Distance(A, A) = %v, want 0", got)
			}
		})
	}
}

func TestDistance_KnownValue(t *testing.T) {
	t.Parallel()
	x := seq([]float64{0}, []float64{1})
	y := seq([]float64{0}, []float64{2}, []float64{1})

	got, err := New().Distance(context.Background(), x, y)
	if err != nil {
		t.Fatalf("Distance: %v", err)
	}
	// Optimal path cost is 1, normalised by max(2, 3).
	if want := 1.0 / 3.0; math.Abs(got-want) > 1e-12 {
		t.Errorf("Distance = %v, want %v", got, want)
	}
}

func TestDistance_SwapKeepsDenominator(t *testing.T) {
	t.Parallel()
	a := New()
	x := seq([]float64{0}, []float64{0})
	y := seq([]float64{1})

	xy, err := a.Distance(context.Background(), x, y)
	if err != nil {
		t.Fatalf("Distance(x, y): %v", err)
	}
	yx, err := a.Distance(context.Background(), y, x)
	if err != nil {
		t.Fatalf("Distance(y, x): %v", err)
	}
	// Path cost 2 over max(2, 1) in both directions.
	if xy != 1.0 || yx != 1.0 {
		t.Errorf("Distance(x, y) = %v, Distance(y, x) = %v, want 1 and 1", xy, yx)
	}
}

func TestDistance_OrderSensitive(t *testing.T) {
	t.Parallel()
	fwd := seq([]float64{0}, []float64{1}, []float64{2}, []float64{3})
	rev := seq([]float64{3}, []float64{2}, []float64{1}, []float64{0})

	got, err := New().Distance(context.Background(), fwd, rev)
	if err != nil {
		t.Fatalf("Distance: %v", err)
	}
	if got <= 0 {
		t.Errorf("Distance(forward, reversed) = %v, want > 0", got)
	}
}

func TestDistance_EmptyPolicies(t *testing.T) {
	t.Parallel()
	a := New()
	empty := types.FeatureSequence{}
	nonEmpty := seq([]float64{1, 2}, []float64{3, 4})

	tests := []struct {
		name string
		x, y types.FeatureSequence
		want float64
	}{
		{"both empty", empty, empty, 0},
		{"first empty", empty, nonEmpty, EmptySequenceDistance},
		{"second empty", nonEmpty, empty, EmptySequenceDistance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := a.Distance(context.Background(), tt.x, tt.y)
			if err != nil {
				t.Fatalf("Distance: %v", err)
			}
			if math.IsNaN(got) || math.IsInf(got, 0) {
				t.Fatalf("Distance = %v, want a finite value", got)
			}
			if got != tt.want {
				t.Errorf("Distance = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDistance_DimensionMismatch(t *testing.T) {
	t.Parallel()
	x := seq([]float64{1, 2}, []float64{3, 4})
	y := seq([]float64{1, 2, 3})

	_, err := New().Distance(context.Background(), x, y)
	if !errors.Is(err, types.ErrInput) {
		t.Fatalf("expected ErrInput, got %v", err)
	}
	var ie *types.InputError
	if !errors.As(err, &ie) || ie.Component != "dtw" {
		t.Errorf("expected InputError from dtw, got %#v", err)
	}
}

func TestDistance_NonFiniteValues(t *testing.T) {
	t.Parallel()
	good := seq([]float64{1, 2}, []float64{3, 4})

	tests := []struct {
		name string
		x, y types.FeatureSequence
	}{
		{"NaN in first", seq([]float64{1, math.NaN()}, []float64{3, 4}), good},
		{"NaN in second", good, seq([]float64{math.NaN(), 2})},
		{"positive infinity", seq([]float64{math.Inf(1), 2}), good},
		{"negative infinity", good, seq([]float64{1, 2}, []float64{3, math.Inf(-1)})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d, err := New().Distance(context.Background(), tt.x, tt.y)
			if !errors.Is(err, types.ErrInput) {
				t.Fatalf("Distance = %v, %v; want ErrInput", d, err)
			}
		})
	}
}

func TestDistance_MaxLength(t *testing.T) {
	t.Parallel()
	a := New(WithMaxLength(2))
	long := seq([]float64{0}, []float64{1}, []float64{2})
	short := seq([]float64{0})

	if _, err := a.Distance(context.Background(), long, short); !errors.Is(err, types.ErrInput) {
		t.Errorf("expected ErrInput for overlong sequence, got %v", err)
	}
	if _, err := a.Distance(context.Background(), short, short); err != nil {
		t.Errorf("unexpected error within limit: %v", err)
	}
}

func TestDistance_CancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	x := seq([]float64{0}, []float64{1})
	_, err := New().Distance(ctx, x, x)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func BenchmarkDistance(b *testing.B) {
	const frames, dim = 400, 13
	mk := func(offset float64) types.FeatureSequence {
		s := types.FeatureSequence{Vectors: make([][]float64, frames)}
		for i := range s.Vectors {
			v := make([]float64, dim)
			for k := range v {
				v[k] = math.Sin(float64(i+k)*0.1 + offset)
			}
			s.Vectors[i] = v
		}
		return s
	}
	x, y := mk(0), mk(0.3)
	a := New()
	ctx := context.Background()

	b.ResetTimer()
	for b.Loop() {
		if _, err := a.Distance(ctx, x, y); err != nil {
			b.Fatal(err)
		}
	}
}
