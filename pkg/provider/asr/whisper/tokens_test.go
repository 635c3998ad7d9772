package whisper

import (
	"math"
	"testing"
	"time"
)

func TestGroupTokens(t *testing.T) {
	t.Parallel()

	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	tokens := []token{
		{Text: "[_BEG_]", P: 1},
		{Text: " بس", P: 0.9, Start: ms(0), End: ms(200)},
		{Text: "م", P: 0.7, Start: ms(200), End: ms(300)},
		{Text: " الله", P: 0.6, Start: ms(350), End: ms(700)},
		{Text: "<|endoftext|>", P: 1},
	}
	words := groupTokens(tokens)
	if len(words) != 2 {
		t.Fatalf("got %d words, want 2: %+v", len(words), words)
	}
	if words[0].Word != "بسم" || words[0].Start != 0 || words[0].End != ms(300) {
		t.Errorf("first word = %+v", words[0])
	}
	if math.Abs(words[0].Confidence-0.8) > 1e-9 {
		t.Errorf("first word confidence = %v, want 0.8", words[0].Confidence)
	}
	if words[1].Word != "الله" || words[1].Start != ms(350) || words[1].Confidence != 0.6 {
		t.Errorf("second word = %+v", words[1])
	}

	if got := groupTokens([]token{{Text: "[_TT_10]"}}); len(got) != 0 {
		t.Errorf("control tokens only: %+v", got)
	}
}
