package tajweed

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/MrWong99/tartil/pkg/types"
)

// Violation is a rule finding at one letter of the reference text.
type Violation struct {
	// RuleID identifies the catalog rule.
	RuleID   string   `json:"ruleId"`
	RuleName string   `json:"ruleName"`
	Category Category `json:"category"`

	// Position is the rune index of the letter in the reference text.
	Position int `json:"position"`

	// Start and End locate the letter in the recording when a timing
	// segment was supplied. Both are zero otherwise.
	Start time.Duration `json:"start,omitempty"`
	End   time.Duration `json:"end,omitempty"`

	// Severity is empty only on position-only advisories.
	Severity types.Severity `json:"severity,omitempty"`

	Expected    string `json:"expected,omitempty"`
	Actual      string `json:"actual,omitempty"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion"`

	// Advisory marks a finding raised from the text alone, without audio
	// evidence that the rule was broken. Advisories are reported but never
	// scored.
	Advisory bool `json:"advisory,omitempty"`
}

// HasTime reports whether the violation carries a time range.
func (v Violation) HasTime() bool { return v.End > v.Start }

func newFinding(r Rule, pos int, sig *types.AudioSignals) Violation {
	v := Violation{
		RuleID:      r.ID,
		RuleName:    r.Name,
		Category:    r.Category,
		Position:    pos,
		Severity:    r.Severity,
		Description: r.Description,
		Suggestion:  r.Suggestion,
	}
	if seg, ok := sig.Segment(pos); ok {
		v.Start, v.End = seg.Start, seg.End
	}
	return v
}

func newAdvisory(r Rule, pos int, sig *types.AudioSignals) Violation {
	v := newFinding(r, pos, sig)
	v.Advisory = true
	return v
}

// durationSeverity grades a too-short elongation or nasalization.
func durationSeverity(measured, required float64) types.Severity {
	if measured < required/2 {
		return types.SeverityCritical
	}
	return types.SeverityMajor
}

func formatCounts(c float64) string { return fmt.Sprintf("%.2f counts", c) }

func sortViolations(vs []Violation) {
	slices.SortStableFunc(vs, func(a, b Violation) int {
		if c := cmp.Compare(a.Position, b.Position); c != 0 {
			return c
		}
		return cmp.Compare(a.RuleID, b.RuleID)
	})
}
