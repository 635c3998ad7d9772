package phoneme

import (
	"slices"
	"testing"
)

func TestScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		recognized string
		reference  string
		want       map[string]float64
	}{
		{"empty recognized", "", "بسم", map[string]float64{}},
		{"empty reference", "بسم", "", map[string]float64{}},
		{"identical", "بسم", "بسم", map[string]float64{"ba_0": 1, "seen_1": 1, "meem_2": 1}},
		{"one substitution", "بصم", "بسم", map[string]float64{"ba_0": 1, "seen_1": 0, "meem_2": 1}},
		{"shorter recognized", "ب", "بسم", map[string]float64{"ba_0": 1}},
		{"diacritics skipped", "بِسم", "بِسم", map[string]float64{"ba_0": 1, "seen_2": 1, "meem_3": 1}},
		{"shared sound class", "تط", "طت", map[string]float64{"ta_0": 0, "ta_1": 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Score(tt.recognized, tt.reference)
			if len(got) != len(tt.want) {
				t.Fatalf("Score = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("Score[%q] = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestParseKey(t *testing.T) {
	t.Parallel()

	name, idx, err := ParseKey("sheen_12")
	if err != nil || name != "sheen" || idx != 12 {
		t.Errorf("ParseKey(sheen_12) = %q, %d, %v", name, idx, err)
	}
	for _, bad := range []string{"", "_3", "ba", "ba_x"} {
		if _, _, err := ParseKey(bad); err == nil {
			t.Errorf("ParseKey(%q): expected error", bad)
		}
	}
}

func TestSortedKeys(t *testing.T) {
	t.Parallel()
	scores := map[string]float64{"meem_10": 1, "ba_2": 1, "seen_9": 0, "odd": 1}

	got := SortedKeys(scores)
	want := []string{"ba_2", "seen_9", "meem_10", "odd"}
	if !slices.Equal(got, want) {
		t.Errorf("SortedKeys = %v, want %v", got, want)
	}
}

func TestName(t *testing.T) {
	t.Parallel()
	if n, ok := Name('ق'); !ok || n != "qaf" {
		t.Errorf("Name(qaf) = %q, %v", n, ok)
	}
	if _, ok := Name('ء'); ok {
		t.Error("hamza is not one of the 28 letters")
	}
}
