package transcript_test

import (
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/tartil/internal/transcript"
	"github.com/MrWong99/tartil/pkg/types"
)

func TestAlign_PositionExample(t *testing.T) {
	t.Parallel()

	got, err := transcript.Align("a x c", "a b c", nil)
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}

	want := []struct {
		ref, rec   string
		match      bool
		confidence float64
	}{
		{"a", "a", true, 1.0},
		{"b", "x", false, 0.5},
		{"c", "c", true, 1.0},
	}
	for i, w := range want {
		e := got[i]
		if e.Position != i || e.Reference != w.ref || e.Recognized != w.rec ||
			e.Match != w.match || e.Confidence != w.confidence {
			t.Errorf("entry %d = %+v, want ref=%q rec=%q match=%v conf=%v",
				i, e, w.ref, w.rec, w.match, w.confidence)
		}
	}
	if n := transcript.Mismatches(got); n != 1 {
		t.Errorf("Mismatches = %d, want 1", n)
	}
}

func TestAlign_TrailingWordsDropped(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		recognized string
		reference  string
		want       int
	}{
		{"recognized longer", "a b c d e", "a b c", 3},
		{"reference longer", "a b", "a b c d", 2},
		{"extra whitespace", "  a\tb \n", "a b", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := transcript.Align(tt.recognized, tt.reference, nil)
			if err != nil {
				t.Fatalf("Align: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d entries, want %d", len(got), tt.want)
			}
		})
	}
}

func TestAlign_EmptyInputs(t *testing.T) {
	t.Parallel()

	_, err := transcript.Align("a b", "   ", nil)
	if !errors.Is(err, types.ErrInput) {
		t.Fatalf("empty reference: expected ErrInput, got %v", err)
	}
	var ie *types.InputError
	if !errors.As(err, &ie) || ie.Component != "word-aligner" {
		t.Errorf("expected InputError from word-aligner, got %#v", err)
	}

	got, err := transcript.Align("", "a b", nil)
	if err != nil {
		t.Fatalf("empty recognized: unexpected error %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("empty recognized: got %#v, want empty non-nil slice", got)
	}
}

func TestAlign_ASRConfidence(t *testing.T) {
	t.Parallel()
	words := []types.WordDetail{
		{Word: "a", Start: 0, End: time.Second, Confidence: 0.92},
		{Word: "x", Start: time.Second, End: 2 * time.Second, Confidence: 0.4},
		{Word: "c", Start: 2 * time.Second, End: 3 * time.Second, Confidence: 0},
	}

	got, err := transcript.Align("a x c", "a b c", words)
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	if got[0].Confidence != 0.92 {
		t.Errorf("matched word with ASR confidence: got %v, want 0.92", got[0].Confidence)
	}
	if got[1].Confidence != transcript.MismatchConfidence {
		t.Errorf("mismatch: got %v, want %v", got[1].Confidence, transcript.MismatchConfidence)
	}
	if got[2].Confidence != 1 {
		t.Errorf("unreported ASR confidence: got %v, want 1", got[2].Confidence)
	}

	// Word details that do not line up with the tokens are ignored.
	got, err = transcript.Align("a x c", "a b c", words[:2])
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	if got[0].Confidence != 1 {
		t.Errorf("misaligned word details: got %v, want 1", got[0].Confidence)
	}
}

func TestAlign_Folding(t *testing.T) {
	t.Parallel()
	reference := "بِسْمِ ٱللَّهِ ٱلرَّحْمَٰنِ"
	recognized := "بسم الله الرحمن"

	exact, err := transcript.Align(recognized, reference, nil)
	if err != nil {
		t.Fatal(err)
	}
	if transcript.Mismatches(exact) != 3 {
		t.Errorf("exact comparison: %d mismatches, want 3", transcript.Mismatches(exact))
	}

	folded, err := transcript.New(transcript.WithFolding(true)).Align(recognized, reference, nil)
	if err != nil {
		t.Fatal(err)
	}
	if transcript.Mismatches(folded) != 0 {
		t.Errorf("folded comparison: %+v, want all matches", folded)
	}
	if folded[0].Reference != "بِسْمِ" {
		t.Errorf("reported reference word = %q, want the original vowelled form", folded[0].Reference)
	}
	if folded[1].Similarity != 1 {
		t.Errorf("similarity of identical folded words = %v, want 1", folded[1].Similarity)
	}
}

func TestAlign_SimilarityIsDiagnosticOnly(t *testing.T) {
	t.Parallel()
	got, err := transcript.Align("kitab", "kitap", nil)
	if err != nil {
		t.Fatal(err)
	}
	e := got[0]
	if e.Match || e.Confidence != transcript.MismatchConfidence {
		t.Errorf("near-identical words must still mismatch: %+v", e)
	}
	if e.Similarity <= 0.8 || e.Similarity >= 1 {
		t.Errorf("Similarity = %v, want a high but imperfect score", e.Similarity)
	}
}

func TestFold(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"بِسْمِ", "بسم"},
		{"ٱللَّهِ", "الله"},
		{"إِنَّ", "ان"},
		{"عَلَىٰ", "علي"},
		{"الـرحمن", "الرحمن"},
		{"abc", "abc"},
	}
	for _, tt := range tests {
		if got := transcript.Fold(tt.in); got != tt.want {
			t.Errorf("Fold(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
