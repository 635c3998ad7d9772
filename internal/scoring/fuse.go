// Package scoring fuses the results of the individual analyses into one
// weighted [Report] with classified errors and practice suggestions.
//
// The overall score is a weighted sum of four terms, each in [0,1]:
//
//	acoustic = max(0, 1 - dtwDistance)
//	phoneme  = mean(phoneme scores), 0.5 when there are none
//	prosody  = mean(prosody similarities), 0.5 when there are none
//	tajweed  = 1 - min(1, 0.08 * scored violations)
//
// weighted 0.30, 0.40, 0.15 and 0.15. Every classified error then subtracts
// a penalty by severity (0.20 critical, 0.10 major, 0.05 minor) and the
// result is clamped to [0,1].
//
// When a collaborator fails, the terms it feeds are left out and the
// remaining weights are renormalised; the report carries one suggestion per
// failure and its confidence shrinks with the weight that was lost.
package scoring

import (
	"math"

	"github.com/MrWong99/tartil/internal/prosody"
	"github.com/MrWong99/tartil/internal/tajweed"
	"github.com/MrWong99/tartil/internal/transcript"
	"github.com/MrWong99/tartil/pkg/types"
)

const component = "fusion"

// Term names one weighted component of the overall score.
type Term string

const (
	TermAcoustic Term = "acoustic"
	TermPhoneme  Term = "phoneme"
	TermProsody  Term = "prosody"
	TermTajweed  Term = "tajweed"
)

// AllTerms lists the terms in weight order.
func AllTerms() []Term { return []Term{TermAcoustic, TermPhoneme, TermProsody, TermTajweed} }

// Weight returns the share of the overall score carried by t.
func (t Term) Weight() float64 {
	switch t {
	case TermAcoustic:
		return 0.30
	case TermPhoneme:
		return 0.40
	case TermProsody:
		return 0.15
	case TermTajweed:
		return 0.15
	}
	return 0
}

const (
	// NeutralScore stands in for a term that has no evidence.
	NeutralScore = 0.5

	// ViolationPenalty is what each scored violation takes off the tajweed term.
	ViolationPenalty = 0.08

	// DefaultConfidence is used when the transcript carries no confidence.
	DefaultConfidence = 0.8
)

// Penalty returns what one classified error of severity s takes off the
// overall score.
func Penalty(s types.Severity) float64 {
	switch s {
	case types.SeverityCritical:
		return 0.20
	case types.SeverityMajor:
		return 0.10
	case types.SeverityMinor:
		return 0.05
	}
	return 0
}

// Degradation records a collaborator that failed and the terms that were
// left out because of it.
type Degradation struct {
	Collaborator string `json:"collaborator"`
	Terms        []Term `json:"terms"`
	Reason       string `json:"reason"`
}

// Inputs is everything [Fuse] combines.
type Inputs struct {
	// DTWDistance is the normalised alignment cost of the recitation
	// against the reference.
	DTWDistance float64

	PhonemeScores       map[string]float64
	ProsodySimilarities map[string]float64

	// Findings are the tajweed engine's results. Advisories are reported
	// but never scored.
	Findings []tajweed.Violation

	Words []transcript.WordAlignment

	// Errors are the classified errors. A nil slice means [Classify] is
	// applied to the inputs above.
	Errors []ClassifiedError

	// Confidence is the transcription confidence in [0,1].
	Confidence float64

	Degraded []Degradation
}

// Fuse combines in into a [Report]. Scores or similarities outside [0,1],
// a negative or NaN distance, or an invalid severity yield an
// [types.InputError].
func Fuse(in Inputs) (*Report, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	violations := tajweed.Violations(in.Findings)
	advisories := tajweed.Advisories(in.Findings)
	errs := in.Errors
	if errs == nil {
		errs = Classify(in.PhonemeScores, violations, in.Words)
	}

	dropped := make(map[Term]bool)
	for _, d := range in.Degraded {
		for _, t := range d.Terms {
			dropped[t] = true
		}
	}

	terms := make(map[Term]float64, 4)
	var weighted, available float64
	for _, t := range AllTerms() {
		if dropped[t] {
			continue
		}
		score := in.term(t, len(violations))
		terms[t] = score
		weighted += t.Weight() * score
		available += t.Weight()
	}

	var overall float64
	if available > 0 {
		overall = weighted / available
	}
	for _, e := range errs {
		overall -= Penalty(e.Severity)
	}

	return newReport(reportFields{
		overall:     clamp01(overall),
		confidence:  clamp01(in.Confidence * available),
		terms:       terms,
		phoneme:     in.PhonemeScores,
		prosody:     in.ProsodySimilarities,
		violations:  violations,
		advisories:  advisories,
		errors:      errs,
		words:       in.Words,
		suggestions: Suggestions(errs, violations, in.Degraded),
		degraded:    in.Degraded,
	}), nil
}

func (in Inputs) term(t Term, violations int) float64 {
	switch t {
	case TermAcoustic:
		return clamp01(1 - in.DTWDistance)
	case TermPhoneme:
		return meanOr(in.PhonemeScores)
	case TermProsody:
		return meanOr(in.ProsodySimilarities)
	case TermTajweed:
		return clamp01(1 - min(1, float64(violations)*ViolationPenalty))
	}
	return 0
}

func (in Inputs) validate() error {
	if math.IsNaN(in.DTWDistance) || in.DTWDistance < 0 {
		return types.NewInputError(component, "dtw distance %v is not a non-negative number", in.DTWDistance)
	}
	if !unit(in.Confidence) {
		return types.NewInputError(component, "confidence %v outside [0,1]", in.Confidence)
	}
	for k, v := range in.PhonemeScores {
		if !unit(v) {
			return types.NewInputError(component, "phoneme score %s=%v outside [0,1]", k, v)
		}
	}
	for k, v := range in.ProsodySimilarities {
		if !unit(v) {
			return types.NewInputError(component, "prosody similarity %s=%v outside [0,1]", k, v)
		}
	}
	for _, v := range in.Findings {
		if !v.Advisory && !v.Severity.IsValid() {
			return types.NewInputError(component, "violation %s has invalid severity %q", v.RuleID, v.Severity)
		}
	}
	for _, e := range in.Errors {
		if !e.Severity.IsValid() {
			return types.NewInputError(component, "%s error has invalid severity %q", e.Type, e.Severity)
		}
	}
	for _, w := range in.Words {
		if !unit(w.Confidence) {
			return types.NewInputError(component, "word %d confidence %v outside [0,1]", w.Position, w.Confidence)
		}
	}
	return nil
}

func meanOr(m map[string]float64) float64 {
	if v, ok := prosody.Mean(m); ok {
		return clamp01(v)
	}
	return NeutralScore
}

func unit(v float64) bool { return v >= 0 && v <= 1 }

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
