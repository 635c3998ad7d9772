package types

import (
	"errors"
	"fmt"
)

// ErrInput is the sentinel wrapped by every [InputError]. Use errors.Is to
// detect malformed-input conditions regardless of the reporting component.
var ErrInput = errors.New("invalid input")

// InputError reports a malformed or empty value where a specific computation
// needs a usable one (e.g. word alignment with an empty reference). It is
// always local and recoverable: the caller skips the computation or
// substitutes a documented default.
type InputError struct {
	// Component names the computation that rejected the input (e.g. "dtw").
	Component string

	// Reason is a short human-readable explanation.
	Reason string
}

// Error implements error.
func (e *InputError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Component, ErrInput, e.Reason)
}

// Unwrap returns [ErrInput].
func (e *InputError) Unwrap() error { return ErrInput }

// NewInputError is a convenience constructor with a formatted reason.
func NewInputError(component, format string, args ...any) *InputError {
	return &InputError{Component: component, Reason: fmt.Sprintf(format, args...)}
}
