package tajweed

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/tartil/pkg/types"
)

func TestDefaultCatalog(t *testing.T) {
	t.Parallel()
	c := DefaultCatalog()

	if c != DefaultCatalog() {
		t.Error("DefaultCatalog should return the same value on every call")
	}
	if c.Len() < len(requiredRules) {
		t.Errorf("default catalog has %d rules, want at least %d", c.Len(), len(requiredRules))
	}
	for _, id := range requiredRules {
		r, err := c.Rule(id)
		if err != nil {
			t.Errorf("Rule(%q): %v", id, err)
			continue
		}
		if r.Name == "" || r.Description == "" || r.Suggestion == "" {
			t.Errorf("rule %q has empty text fields: %+v", id, r)
		}
	}
	for _, cat := range AllCategories() {
		if len(c.ByCategory(cat)) == 0 {
			t.Errorf("category %s has no rules", cat)
		}
	}
}

func TestCatalog_RulesReturnsCopy(t *testing.T) {
	t.Parallel()
	c := DefaultCatalog()

	rules := c.Rules()
	rules[0].ID = "mutated"
	if c.Rules()[0].ID == "mutated" {
		t.Error("Rules() exposed the catalog's backing slice")
	}
}

const minimalRule = `
  - id: %s
    name: n
    category: stopping
    severity: minor
    description: d
    suggestion: s
`

func minimalCatalog(extra string) string {
	var b strings.Builder
	b.WriteString("rules:\n")
	for _, id := range requiredRules {
		b.WriteString(strings.ReplaceAll(minimalRule, "%s", id))
	}
	b.WriteString(extra)
	return b.String()
}

func TestLoadCatalog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"minimal valid", minimalCatalog(""), ""},
		{"unknown field", minimalCatalog("    colour: red\n"), "colour"},
		{"bad severity", minimalCatalog(`
  - id: extra
    category: stopping
    severity: fatal
`), "unknown severity"},
		{"bad category", minimalCatalog(`
  - id: extra
    category: recitation
    severity: minor
`), "unknown category"},
		{"duplicate id", minimalCatalog(strings.ReplaceAll(minimalRule, "%s", "iqlab")), "duplicate id"},
		{"negative counts", minimalCatalog(`
  - id: extra
    category: elongation
    severity: minor
    counts: -1
`), "non-negative"},
		{"missing required", "rules:\n" + strings.ReplaceAll(minimalRule, "%s", "iqlab"), "missing required rule"},
		{"empty id", minimalCatalog(`
  - id: ""
    category: stopping
    severity: minor
`), "id must not be empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, err := LoadCatalog(strings.NewReader(tt.yaml))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if c.Len() != len(requiredRules) {
					t.Errorf("Len() = %d, want %d", c.Len(), len(requiredRules))
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadCatalogFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(path, []byte(minimalCatalog("")), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadCatalogFile(path)
	if err != nil {
		t.Fatalf("LoadCatalogFile: %v", err)
	}
	r, err := c.Rule("qalqalah_kubra")
	if err != nil {
		t.Fatal(err)
	}
	if r.Category != CategoryStopping || r.Severity != types.SeverityMinor {
		t.Errorf("rule = %+v, want values from the file", r)
	}

	if _, err := LoadCatalogFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCatalog_RuleLookupError(t *testing.T) {
	t.Parallel()
	_, err := DefaultCatalog().Rule("tajweed_of_the_future")

	var le *RuleLookupError
	if !errors.As(err, &le) {
		t.Fatalf("expected *RuleLookupError, got %T", err)
	}
	if !errors.Is(err, ErrRuleNotFound) {
		t.Error("RuleLookupError should wrap ErrRuleNotFound")
	}
	if !strings.Contains(err.Error(), "tajweed_of_the_future") {
		t.Errorf("error %q does not name the rule", err)
	}
}

func TestCategory_TextRoundTrip(t *testing.T) {
	t.Parallel()
	for _, c := range AllCategories() {
		text, err := c.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%d): %v", c, err)
		}
		var back Category
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", text, err)
		}
		if back != c {
			t.Errorf("round trip %s -> %s", c, back)
		}
	}
	if _, err := Category(99).MarshalText(); err == nil {
		t.Error("expected error for out-of-range category")
	}
	if got := Category(99).String(); got != "Category(99)" {
		t.Errorf("String() = %q", got)
	}
}

func TestRule_JSON(t *testing.T) {
	t.Parallel()
	r, _ := DefaultCatalog().Rule("tafkheem_ra")
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"category":"heavy_light"`) {
		t.Errorf("category not encoded by name: %s", data)
	}
}
