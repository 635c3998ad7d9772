package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/MrWong99/tartil/internal/tajweed"
	"github.com/MrWong99/tartil/internal/transcript"
)

// Report is the fused result of one analysis. A Report is immutable: every
// accessor returns a copy.
type Report struct {
	f reportFields
}

type reportFields struct {
	overall     float64
	confidence  float64
	terms       map[Term]float64
	phoneme     map[string]float64
	prosody     map[string]float64
	violations  []tajweed.Violation
	advisories  []tajweed.Violation
	errors      []ClassifiedError
	words       []transcript.WordAlignment
	suggestions []string
	degraded    []Degradation
}

// newReport copies f into a Report. It panics when a number lies outside
// [0,1], which means the fusion arithmetic is broken.
func newReport(f reportFields) *Report {
	if err := f.check(); err != nil {
		panic(fmt.Sprintf("scoring: invalid report: %v", err))
	}
	return &Report{f: reportFields{
		overall:     f.overall,
		confidence:  f.confidence,
		terms:       nonNilMap(f.terms),
		phoneme:     nonNilMap(f.phoneme),
		prosody:     nonNilMap(f.prosody),
		violations:  slices.Clone(f.violations),
		advisories:  slices.Clone(f.advisories),
		errors:      slices.Clone(f.errors),
		words:       slices.Clone(f.words),
		suggestions: slices.Clone(f.suggestions),
		degraded:    cloneDegraded(f.degraded),
	}}
}

func (f reportFields) check() error {
	var errs []error
	inRange := func(what string, v float64) {
		if !unit(v) {
			errs = append(errs, fmt.Errorf("%s %v outside [0,1]", what, v))
		}
	}
	inRange("overall", f.overall)
	inRange("confidence", f.confidence)
	for t, v := range f.terms {
		inRange("term "+string(t), v)
	}
	for k, v := range f.phoneme {
		inRange("phoneme "+k, v)
	}
	for k, v := range f.prosody {
		inRange("prosody "+k, v)
	}
	for _, e := range f.errors {
		if !e.Severity.IsValid() {
			errs = append(errs, fmt.Errorf("%s error severity %q", e.Type, e.Severity))
		}
		inRange("error confidence", e.Confidence)
	}
	for _, w := range f.words {
		inRange(fmt.Sprintf("word %d confidence", w.Position), w.Confidence)
	}
	return errors.Join(errs...)
}

// Overall is the fused score in [0,1].
func (r *Report) Overall() float64 { return r.f.overall }

// Confidence is how far the score can be trusted, in [0,1].
func (r *Report) Confidence() float64 { return r.f.confidence }

// Terms returns the score of every term that contributed to Overall.
func (r *Report) Terms() map[Term]float64 { return maps.Clone(r.f.terms) }

// PhonemeScores returns the letter-by-letter scores.
func (r *Report) PhonemeScores() map[string]float64 { return maps.Clone(r.f.phoneme) }

// ProsodySimilarities returns the per-feature prosody similarities.
func (r *Report) ProsodySimilarities() map[string]float64 { return maps.Clone(r.f.prosody) }

// Violations returns the scored rule violations.
func (r *Report) Violations() []tajweed.Violation { return slices.Clone(r.f.violations) }

// Advisories returns rule findings raised without audio evidence.
func (r *Report) Advisories() []tajweed.Violation { return slices.Clone(r.f.advisories) }

func (r *Report) Errors() []ClassifiedError { return slices.Clone(r.f.errors) }

func (r *Report) Words() []transcript.WordAlignment { return slices.Clone(r.f.words) }

func (r *Report) Suggestions() []string { return slices.Clone(r.f.suggestions) }

// Degraded lists the collaborators that failed during the analysis.
func (r *Report) Degraded() []Degradation { return cloneDegraded(r.f.degraded) }

// IsDegraded reports whether any term was left out of the score.
func (r *Report) IsDegraded() bool { return len(r.f.degraded) > 0 }

// ErrorCount returns how many classified errors have the given type.
func (r *Report) ErrorCount(t ErrorType) int {
	n := 0
	for _, e := range r.f.errors {
		if e.Type == t {
			n++
		}
	}
	return n
}

type reportJSON struct {
	Overall             float64                    `json:"overall"`
	Confidence          float64                    `json:"confidence"`
	Terms               map[Term]float64           `json:"terms"`
	PhonemeScores       map[string]float64         `json:"phonemeScores"`
	ProsodySimilarities map[string]float64         `json:"prosodySimilarities"`
	Violations          []tajweed.Violation        `json:"violations"`
	Advisories          []tajweed.Violation        `json:"advisories"`
	Errors              []ClassifiedError          `json:"errors"`
	Words               []transcript.WordAlignment `json:"words"`
	Suggestions         []string                   `json:"suggestions"`
	Degraded            []Degradation              `json:"degraded,omitempty"`
}

// MarshalJSON implements json.Marshaler. Empty lists encode as [] so
// clients never see null.
func (r *Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(reportJSON{
		Overall:             r.f.overall,
		Confidence:          r.f.confidence,
		Terms:               r.f.terms,
		PhonemeScores:       r.f.phoneme,
		ProsodySimilarities: r.f.prosody,
		Violations:          nonNil(r.f.violations),
		Advisories:          nonNil(r.f.advisories),
		Errors:              nonNil(r.f.errors),
		Words:               nonNil(r.f.words),
		Suggestions:         nonNil(r.f.suggestions),
		Degraded:            r.f.degraded,
	})
}

// UnmarshalJSON implements json.Unmarshaler so stored reports can be read
// back. The decoded numbers are checked like those of a fused report.
func (r *Report) UnmarshalJSON(data []byte) error {
	var j reportJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	f := reportFields{
		overall:     j.Overall,
		confidence:  j.Confidence,
		terms:       j.Terms,
		phoneme:     j.PhonemeScores,
		prosody:     j.ProsodySimilarities,
		violations:  j.Violations,
		advisories:  j.Advisories,
		errors:      j.Errors,
		words:       j.Words,
		suggestions: j.Suggestions,
		degraded:    j.Degraded,
	}
	if err := f.check(); err != nil {
		return fmt.Errorf("scoring: invalid report: %w", err)
	}
	r.f = f
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func nonNilMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return map[K]V{}
	}
	return maps.Clone(m)
}

func cloneDegraded(ds []Degradation) []Degradation {
	if ds == nil {
		return nil
	}
	out := make([]Degradation, len(ds))
	for i, d := range ds {
		d.Terms = slices.Clone(d.Terms)
		out[i] = d
	}
	return out
}
