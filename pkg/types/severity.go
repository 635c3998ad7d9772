package types

import "fmt"

// Severity grades a pronunciation error or rule violation.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// IsValid reports whether s is a recognised severity. The empty severity is
// not valid; it only appears on position-only advisories.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityMinor, SeverityMajor, SeverityCritical:
		return true
	}
	return false
}

// Rank orders severities: critical > major > minor > unset.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityMajor:
		return 2
	case SeverityMinor:
		return 1
	default:
		return 0
	}
}

// UnmarshalText implements encoding.TextUnmarshaler so severities decode
// strictly from YAML and JSON.
func (s *Severity) UnmarshalText(text []byte) error {
	v := Severity(text)
	if !v.IsValid() {
		return fmt.Errorf("unknown severity %q; valid values: minor, major, critical", text)
	}
	*s = v
	return nil
}
