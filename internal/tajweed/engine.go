// Package tajweed checks vowelled Quranic text against a catalog of Tajweed
// rules.
//
// The reference text is scanned into letter tokens by [Tokenize]. Each
// [Category] has one detector in a fixed table; an [Engine] runs the
// detectors of its enabled categories over the tokens and merges their
// findings ordered by position.
//
// Findings come in two kinds. A violation is backed by audio evidence
// (timing, echo, formant weight or clarity signals) and feeds the score. An
// advisory marks a place where a rule applies but no evidence was supplied;
// advisories are reported to the reciter and never scored.
//
// The [Catalog] is data: an embedded YAML file by default, optionally a
// user-supplied one. Engines and catalogs are immutable after construction
// and safe for concurrent use.
package tajweed

import (
	"slices"
	"time"

	"github.com/MrWong99/tartil/pkg/types"
)

// Option is a functional option for configuring an [Engine].
type Option func(*Engine)

// WithCategories restricts the engine to the listed categories. Without
// this option every category is enabled.
func WithCategories(cats ...Category) Option {
	return func(e *Engine) {
		e.enabled = [categoryCount]bool{}
		for _, c := range cats {
			if c.valid() {
				e.enabled[c] = true
			}
		}
	}
}

// WithCountDuration sets the length of one rhythmic count used when the
// supplied signals do not declare their own.
func WithCountDuration(d time.Duration) Option {
	return func(e *Engine) {
		e.countDuration = d
	}
}

// Engine runs the rule detectors over reference text.
type Engine struct {
	catalog       *Catalog
	enabled       [categoryCount]bool
	countDuration time.Duration
}

// NewEngine returns an engine over catalog. A nil catalog selects
// [DefaultCatalog].
func NewEngine(catalog *Catalog, opts ...Option) *Engine {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	e := &Engine{catalog: catalog}
	for i := range e.enabled {
		e.enabled[i] = true
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Catalog returns the engine's catalog.
func (e *Engine) Catalog() *Catalog { return e.catalog }

// Categories returns the enabled categories in declaration order.
func (e *Engine) Categories() []Category {
	var out []Category
	for i, on := range e.enabled {
		if on {
			out = append(out, Category(i))
		}
	}
	return out
}

// Check returns every finding, violations and advisories alike, ordered by
// position and then rule ID. signals may be nil. A too-short ghunnah on a
// nūn sākinah merged into the next letter is reported once, under the
// assimilation rule.
func (e *Engine) Check(text string, signals *types.AudioSignals) []Violation {
	toks := Tokenize(text)
	sig := e.effectiveSignals(signals)
	var out []Violation
	for i, on := range e.enabled {
		if on {
			out = append(out, detectors[i](e.catalog, toks, sig)...)
		}
	}
	out = dropDoubleTimed(out)
	sortViolations(out)
	return out
}

// CheckViolations returns only the findings backed by audio evidence.
func (e *Engine) CheckViolations(text string, signals *types.AudioSignals) []Violation {
	return Violations(e.Check(text, signals))
}

// Violations filters advisories out of findings.
func Violations(findings []Violation) []Violation {
	return slices.DeleteFunc(slices.Clone(findings), func(v Violation) bool { return v.Advisory })
}

// Advisories returns only the advisories in findings.
func Advisories(findings []Violation) []Violation {
	return slices.DeleteFunc(slices.Clone(findings), func(v Violation) bool { return !v.Advisory })
}

// Rule returns the catalog rule with the given ID.
func (e *Engine) Rule(id string) (Rule, error) { return e.catalog.Rule(id) }

// Explain returns the description of a rule followed by its suggestion.
func (e *Engine) Explain(id string) (string, error) {
	r, err := e.catalog.Rule(id)
	if err != nil {
		return "", err
	}
	if r.Suggestion == "" {
		return r.Description, nil
	}
	return r.Description + " " + r.Suggestion, nil
}

// RulesByCategory returns the catalog rules of one category.
func (e *Engine) RulesByCategory(cat Category) []Rule { return e.catalog.ByCategory(cat) }

// ValidateApplication checks whether rule id was applied correctly in
// segment. It runs the detector of the rule's category, regardless of the
// enabled categories, and returns false together with the offending
// violations when the detector reports a violation of exactly that rule.
// Advisories do not count against the rule.
func (e *Engine) ValidateApplication(id, segment string, signals *types.AudioSignals) (bool, []Violation, error) {
	r, err := e.catalog.Rule(id)
	if err != nil {
		return false, nil, err
	}
	found := detectors[r.Category](e.catalog, Tokenize(segment), e.effectiveSignals(signals))
	var bad []Violation
	for _, v := range found {
		if v.RuleID == id && !v.Advisory {
			bad = append(bad, v)
		}
	}
	sortViolations(bad)
	return len(bad) == 0, bad, nil
}

// effectiveSignals fills in the engine's count duration when signals lack
// one. The caller's value is never modified.
func (e *Engine) effectiveSignals(signals *types.AudioSignals) *types.AudioSignals {
	if signals == nil || signals.CountDuration > 0 || e.countDuration <= 0 {
		return signals
	}
	cp := *signals
	cp.CountDuration = e.countDuration
	return &cp
}
