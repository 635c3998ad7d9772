// Package transcript aligns an ASR transcript with the reference text of a
// recitation, word by word.
//
// Alignment is position-indexed: the i-th recognized word is compared with
// the i-th reference word, up to the shorter of the two, and trailing words
// of the longer side are dropped. Insertions and omissions therefore shift
// every later position; no edit-distance search is attempted.
//
// Each entry also carries the Jaro-Winkler similarity of the two words as a
// diagnostic. It does not influence the match flag or the confidence.
//
// An [Aligner] is read-only after construction and safe for concurrent use.
package transcript

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/tartil/pkg/types"
)

const (
	component = "word-aligner"

	// MismatchConfidence is the confidence assigned to a mismatched pair.
	MismatchConfidence = 0.5
)

// WordAlignment is the comparison of one reference word with the recognized
// word at the same position.
type WordAlignment struct {
	Reference  string `json:"referenceWord"`
	Recognized string `json:"recognizedWord"`
	Match      bool   `json:"match"`

	// Position is the zero-based word index.
	Position int `json:"position"`

	// Confidence is in [0,1]: the ASR word confidence (or 1.0) for a match,
	// [MismatchConfidence] otherwise.
	Confidence float64 `json:"confidence"`

	// Similarity is the Jaro-Winkler similarity of the compared forms.
	Similarity float64 `json:"similarity"`
}

// Option is a functional option for configuring an [Aligner].
type Option func(*Aligner)

// WithFolding compares words after [Fold] removes diacritics and unifies
// letter variants. ASR output is usually unvowelled, so without folding a
// vowelled reference never matches. Reported words keep their original
// form.
func WithFolding(enabled bool) Option {
	return func(a *Aligner) {
		a.fold = enabled
	}
}

// Aligner performs position-indexed word alignment.
type Aligner struct {
	fold bool
}

// New returns an [Aligner] configured with the supplied options. Words are
// compared exactly unless [WithFolding] is given.
func New(opts ...Option) *Aligner {
	a := &Aligner{}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Align compares recognized with reference position by position.
//
// words, when it holds exactly one entry per recognized token, supplies the
// ASR confidence reported for matched words; otherwise matches get 1.0. An
// ASR confidence of 0 is treated as unreported.
//
// An empty reference is an [types.InputError]. An empty recognized text
// yields an empty, non-nil result.
func (a *Aligner) Align(recognized, reference string, words []types.WordDetail) ([]WordAlignment, error) {
	ref := strings.Fields(reference)
	if len(ref) == 0 {
		return nil, types.NewInputError(component, "reference text has no words")
	}
	rec := strings.Fields(recognized)

	n := min(len(ref), len(rec))
	useASR := len(words) == len(rec)
	out := make([]WordAlignment, n)
	for i := range n {
		r, h := ref[i], rec[i]
		if a.fold {
			r, h = Fold(r), Fold(h)
		}
		e := WordAlignment{
			Reference:  ref[i],
			Recognized: rec[i],
			Match:      r == h,
			Position:   i,
			Confidence: MismatchConfidence,
			Similarity: matchr.JaroWinkler(r, h, false),
		}
		if e.Match {
			e.Confidence = 1
			if useASR && words[i].Confidence > 0 {
				e.Confidence = min(words[i].Confidence, 1)
			}
		}
		out[i] = e
	}
	return out, nil
}

// Align runs a default [Aligner] with exact comparison.
func Align(recognized, reference string, words []types.WordDetail) ([]WordAlignment, error) {
	return New().Align(recognized, reference, words)
}

// Mismatches counts the entries whose words differ.
func Mismatches(entries []WordAlignment) int {
	n := 0
	for _, e := range entries {
		if !e.Match {
			n++
		}
	}
	return n
}
