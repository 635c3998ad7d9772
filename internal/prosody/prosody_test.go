package prosody

import (
	"math"
	"testing"

	"github.com/MrWong99/tartil/pkg/types"
)

func f(v float64) *float64 { return &v }

func TestCompare_PitchExample(t *testing.T) {
	t.Parallel()
	got := Compare(
		types.ProsodySummary{AveragePitch: f(100)},
		types.ProsodySummary{AveragePitch: f(150)},
	)
	if len(got) != 1 {
		t.Fatalf("got %v, want exactly averagePitch", got)
	}
	want := 1 - 50.0/150.0
	if math.Abs(got[types.FeatureAveragePitch]-want) > 1e-12 {
		t.Errorf("averagePitch = %v, want %v", got[types.FeatureAveragePitch], want)
	}
}

func TestCompare_MissingFeaturesOmitted(t *testing.T) {
	t.Parallel()
	user := types.ProsodySummary{
		AveragePitch: f(120),
		Duration:     f(4.5),
		SpeechRate:   f(3),
	}
	ref := types.ProsodySummary{
		AveragePitch:     f(120),
		AverageIntensity: f(0.2),
		Duration:         f(5),
	}

	got := Compare(user, ref)
	if len(got) != 2 {
		t.Fatalf("got %v, want averagePitch and duration only", got)
	}
	if got[types.FeatureAveragePitch] != 1 {
		t.Errorf("averagePitch = %v, want 1", got[types.FeatureAveragePitch])
	}
	if _, ok := got[types.FeatureSpeechRate]; ok {
		t.Error("speechRate missing from reference should be omitted")
	}
	if _, ok := got[types.FeatureAverageIntensity]; ok {
		t.Error("averageIntensity missing from user should be omitted")
	}
}

func TestCompare_EmptySummaries(t *testing.T) {
	t.Parallel()
	if got := Compare(types.ProsodySummary{}, types.ProsodySummary{}); len(got) != 0 {
		t.Errorf("got %v, want empty map", got)
	}
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b float64
		want float64
	}{
		{"both zero", 0, 0, 1},
		{"equal", 0.3, 0.3, 1},
		{"symmetric", 150, 100, 1 - 50.0/150.0},
		{"one zero", 0, 5, 0},
		{"negative values", -2, -1, 0.5},
		{"opposite signs clamp", -1, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Similarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Similarity(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
			if got < 0 || got > 1 {
				t.Errorf("Similarity(%v, %v) = %v out of [0,1]", tt.a, tt.b, got)
			}
		})
	}
}

func TestCompare_NonFiniteOmitted(t *testing.T) {
	t.Parallel()
	got := Compare(
		types.ProsodySummary{AveragePitch: f(math.NaN()), Duration: f(math.Inf(1))},
		types.ProsodySummary{AveragePitch: f(100), Duration: f(3)},
	)
	if len(got) != 0 {
		t.Errorf("got %v, want non-finite features omitted", got)
	}
}

func TestMean(t *testing.T) {
	t.Parallel()
	if _, ok := Mean(nil); ok {
		t.Error("Mean(nil) should report !ok")
	}
	m, ok := Mean(map[string]float64{"a": 1, "b": 0.5})
	if !ok || m != 0.75 {
		t.Errorf("Mean = %v, %v; want 0.75, true", m, ok)
	}
}
