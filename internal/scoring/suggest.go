package scoring

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/MrWong99/tartil/internal/phoneme"
	"github.com/MrWong99/tartil/internal/tajweed"
	"github.com/MrWong99/tartil/pkg/types"
)

// maxSuggestions bounds both the error messages and the rule suggestions.
const maxSuggestions = 3

// Suggestions builds the practice advice for a report, in order:
//
//  1. one summary line when there are critical errors
//  2. up to three messages for the most severe non-critical errors
//  3. up to three rule suggestions for the violations, repeats included
//  4. one note per degraded collaborator
//
// The result is deterministic for the same input.
func Suggestions(errs []ClassifiedError, violations []tajweed.Violation, degraded []Degradation) []string {
	var out []string

	critical := 0
	var rest []ClassifiedError
	for _, e := range errs {
		if e.Severity == types.SeverityCritical {
			critical++
			continue
		}
		rest = append(rest, e)
	}
	if critical > 0 {
		out = append(out, fmt.Sprintf("%d critical errors found. Focus on these first.", critical))
	}

	slices.SortStableFunc(rest, func(a, b ClassifiedError) int {
		return cmp.Compare(b.Severity.Rank(), a.Severity.Rank())
	})
	for _, e := range rest[:min(len(rest), maxSuggestions)] {
		out = append(out, errorMessage(e))
	}

	n := 0
	for _, v := range violations {
		if n == maxSuggestions {
			break
		}
		if v.Advisory || v.Suggestion == "" {
			continue
		}
		out = append(out, v.Suggestion)
		n++
	}

	for _, d := range degraded {
		out = append(out, degradedMessage(d))
	}
	return out
}

func errorMessage(e ClassifiedError) string {
	switch e.Type {
	case ErrorPhoneme:
		name := e.Phoneme
		if n, _, err := phoneme.ParseKey(e.Phoneme); err == nil {
			name = n
		}
		return fmt.Sprintf("Practice the %s sound more carefully.", name)
	case ErrorTajweed:
		return "Tajweed: " + e.Description
	case ErrorWord:
		return fmt.Sprintf("Word error: %q should be %q.", e.RecognizedWord, e.ReferenceWord)
	}
	return fmt.Sprintf("%s error at position %d.", e.Type, e.Position)
}

func degradedMessage(d Degradation) string {
	names := make([]string, len(d.Terms))
	for i, t := range d.Terms {
		names[i] = string(t)
	}
	if d.Collaborator == "" {
		msg := "The " + strings.Join(names, " and ") + " scores were left out"
		if d.Reason != "" {
			msg += " (" + d.Reason + ")"
		}
		return msg + "."
	}
	msg := fmt.Sprintf("The %s service was unavailable", d.Collaborator)
	if d.Reason != "" {
		msg += " (" + d.Reason + ")"
	}
	if len(names) > 0 {
		msg += "; the " + strings.Join(names, " and ") + " scores were left out"
	}
	return msg + ". Try again later for a complete analysis."
}
