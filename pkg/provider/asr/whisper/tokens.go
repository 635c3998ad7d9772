package whisper

import (
	"strings"
	"time"

	"github.com/MrWong99/tartil/pkg/types"
)

// token is one decoded whisper.cpp token.
type token struct {
	Text       string
	P          float64
	Start, End time.Duration
}

// isControl reports whether t is a timestamp or special token such as
// "[_BEG_]" or "<|endoftext|>".
func (t token) isControl() bool {
	return strings.HasPrefix(t.Text, "[_") || strings.HasPrefix(t.Text, "<|")
}

// groupTokens joins sub-word tokens into words. A token that starts with a
// space begins a new word. A word's confidence is the mean probability of
// its tokens.
func groupTokens(tokens []token) []types.WordDetail {
	var (
		words []types.WordDetail
		cur   strings.Builder
		sum   float64
		n     int
		start time.Duration
		end   time.Duration
	)
	flush := func() {
		if w := strings.TrimSpace(cur.String()); w != "" {
			words = append(words, types.WordDetail{Word: w, Start: start, End: end, Confidence: sum / float64(n)})
		}
		cur.Reset()
		sum, n = 0, 0
	}
	for _, t := range tokens {
		if t.isControl() || t.Text == "" {
			continue
		}
		if strings.HasPrefix(t.Text, " ") || n == 0 {
			flush()
			start = t.Start
		}
		cur.WriteString(t.Text)
		sum += t.P
		n++
		end = t.End
	}
	flush()
	return words
}
