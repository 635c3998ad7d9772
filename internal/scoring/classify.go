package scoring

import (
	"github.com/MrWong99/tartil/internal/phoneme"
	"github.com/MrWong99/tartil/internal/tajweed"
	"github.com/MrWong99/tartil/internal/transcript"
	"github.com/MrWong99/tartil/pkg/types"
)

// ErrorType tells which analysis produced a [ClassifiedError].
type ErrorType string

const (
	ErrorPhoneme ErrorType = "phoneme"
	ErrorTajweed ErrorType = "tajweed"
	ErrorWord    ErrorType = "word"
)

const (
	// phonemeErrorBelow is the phoneme score under which a letter is an error.
	phonemeErrorBelow = 0.5
	// phonemeMajorBelow is the phoneme score under which the error is major.
	phonemeMajorBelow = 0.3
)

// ClassifiedError is one pronunciation error with its severity. Only the
// fields relevant to Type are set.
type ClassifiedError struct {
	Type     ErrorType      `json:"type"`
	Severity types.Severity `json:"severity"`

	// Phoneme errors.
	Phoneme    string  `json:"phoneme,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`

	// Tajweed errors.
	RuleID      string `json:"ruleId,omitempty"`
	Description string `json:"description,omitempty"`
	Suggestion  string `json:"suggestion,omitempty"`

	// Word errors. Position is also the rune index of tajweed errors.
	ReferenceWord  string `json:"referenceWord,omitempty"`
	RecognizedWord string `json:"recognizedWord,omitempty"`
	Position       int    `json:"position"`
}

// Classify turns the analysis results into classified errors, in this
// order: phoneme errors by rune index, tajweed violations as given, then
// mismatched words by position.
//
//   - a phoneme score below 0.5 is an error, major below 0.3 and minor
//     otherwise; its confidence is 1 - score
//   - every violation is an error with the violation's severity;
//     advisories are skipped
//   - every mismatched word is a major error
func Classify(phonemeScores map[string]float64, violations []tajweed.Violation, words []transcript.WordAlignment) []ClassifiedError {
	var out []ClassifiedError
	for _, key := range phoneme.SortedKeys(phonemeScores) {
		score := phonemeScores[key]
		if score >= phonemeErrorBelow {
			continue
		}
		sev := types.SeverityMinor
		if score < phonemeMajorBelow {
			sev = types.SeverityMajor
		}
		e := ClassifiedError{
			Type:       ErrorPhoneme,
			Severity:   sev,
			Phoneme:    key,
			Confidence: clamp01(1 - score),
		}
		if _, idx, err := phoneme.ParseKey(key); err == nil {
			e.Position = idx
		}
		out = append(out, e)
	}
	for _, v := range violations {
		if v.Advisory {
			continue
		}
		out = append(out, ClassifiedError{
			Type:        ErrorTajweed,
			Severity:    v.Severity,
			RuleID:      v.RuleID,
			Description: v.Description,
			Suggestion:  v.Suggestion,
			Position:    v.Position,
		})
	}
	for _, w := range words {
		if w.Match {
			continue
		}
		out = append(out, ClassifiedError{
			Type:           ErrorWord,
			Severity:       types.SeverityMajor,
			ReferenceWord:  w.Reference,
			RecognizedWord: w.Recognized,
			Position:       w.Position,
		})
	}
	return out
}
