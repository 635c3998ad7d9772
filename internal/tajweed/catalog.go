package tajweed

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/tartil/pkg/types"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// ErrRuleNotFound is wrapped by every [RuleLookupError].
var ErrRuleNotFound = errors.New("rule not found")

// RuleLookupError reports an unknown rule ID.
type RuleLookupError struct {
	ID string
}

// Error implements error.
func (e *RuleLookupError) Error() string {
	return fmt.Sprintf("tajweed: %s: %q", ErrRuleNotFound, e.ID)
}

// Unwrap returns [ErrRuleNotFound].
func (e *RuleLookupError) Unwrap() error { return ErrRuleNotFound }

// Rule is one immutable entry of the Tajweed catalog.
type Rule struct {
	// ID is the unique machine-readable identifier (e.g. "qalqalah_kubra").
	ID string `yaml:"id" json:"id"`

	// Name is the bilingual display name.
	Name string `yaml:"name" json:"name"`

	Category Category `yaml:"category" json:"category"`

	// Letters is the set of trigger letters. Empty for rules that are not
	// tied to specific letters.
	Letters string `yaml:"letters,omitempty" json:"letters,omitempty"`

	// Counts is the target duration in rhythmic counts, or 0 when the rule
	// has no timing requirement.
	Counts float64 `yaml:"counts,omitempty" json:"counts,omitempty"`

	// Severity is the default severity of a violation.
	Severity types.Severity `yaml:"severity" json:"severity"`

	Description string `yaml:"description" json:"description"`
	Suggestion  string `yaml:"suggestion" json:"suggestion"`
}

// Triggers reports whether r is one of the rule's trigger letters.
func (r Rule) Triggers(letter rune) bool {
	return strings.ContainsRune(r.Letters, letter)
}

// requiredRules lists every rule ID a detector can report.
var requiredRules = []string{
	"throat_letters", "tongue_letters", "lip_letters",
	"natural_madd", "compulsory_madd", "permissible_madd",
	"ghunnah_noon_sakinah", "ghunnah_meem_sakinah", "ghunnah_mushaddadah",
	"complete_idgham", "idgham_without_ghunnah", "idgham_mithlain",
	"iqlab",
	"idhhar_halqi", "idhhar_shafawi",
	"ikhfa_haqiqi", "ikhfa_shafawi",
	"qalqalah_sughra", "qalqalah_kubra",
	"tafkheem_ra", "tarqeeq_ra", "tafkheem_lam_allah", "emphatic_letters",
	"waqf_sukun", "tanween_waqf", "ta_marbuta_waqf",
}

// Catalog is an immutable, validated set of rules. It is safe for
// concurrent use.
type Catalog struct {
	rules []Rule
	byID  map[string]int
}

// NewCatalog validates rules and builds a catalog from them. IDs must be
// unique, categories and severities valid, and every rule a detector can
// report must be present.
func NewCatalog(rules []Rule) (*Catalog, error) {
	c := &Catalog{
		rules: make([]Rule, len(rules)),
		byID:  make(map[string]int, len(rules)),
	}
	copy(c.rules, rules)

	var errs []error
	for i, r := range c.rules {
		if r.ID == "" {
			errs = append(errs, fmt.Errorf("rules[%d]: id must not be empty", i))
			continue
		}
		if _, dup := c.byID[r.ID]; dup {
			errs = append(errs, fmt.Errorf("rules[%d]: duplicate id %q", i, r.ID))
			continue
		}
		c.byID[r.ID] = i
		if !r.Category.valid() {
			errs = append(errs, fmt.Errorf("rule %q: invalid category %d", r.ID, int(r.Category)))
		}
		if !r.Severity.IsValid() {
			errs = append(errs, fmt.Errorf("rule %q: invalid severity %q", r.ID, r.Severity))
		}
		if r.Counts < 0 {
			errs = append(errs, fmt.Errorf("rule %q: counts must be non-negative, got %v", r.ID, r.Counts))
		}
	}
	for _, id := range requiredRules {
		if _, ok := c.byID[id]; !ok {
			errs = append(errs, fmt.Errorf("missing required rule %q", id))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("tajweed: invalid catalog: %w", err)
	}
	return c, nil
}

type catalogFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadCatalog decodes a YAML rule catalog from r. Unknown fields are
// rejected.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f catalogFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("tajweed: decode catalog: %w", err)
	}
	return NewCatalog(f.Rules)
}

// LoadCatalogFile opens path and decodes it with [LoadCatalog].
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tajweed: open catalog %q: %w", path, err)
	}
	defer f.Close()
	return LoadCatalog(f)
}

var defaultCatalog = sync.OnceValue(func() *Catalog {
	c, err := LoadCatalog(bytes.NewReader(defaultCatalogYAML))
	if err != nil {
		panic(fmt.Sprintf("tajweed: embedded catalog: %v", err))
	}
	return c
})

// DefaultCatalog returns the built-in catalog. The same value is returned on
// every call.
func DefaultCatalog() *Catalog { return defaultCatalog() }

// Len returns the number of rules.
func (c *Catalog) Len() int { return len(c.rules) }

// Rule returns the rule with the given ID or a [*RuleLookupError].
func (c *Catalog) Rule(id string) (Rule, error) {
	i, ok := c.byID[id]
	if !ok {
		return Rule{}, &RuleLookupError{ID: id}
	}
	return c.rules[i], nil
}

// rule returns a rule that NewCatalog guaranteed to exist.
func (c *Catalog) rule(id string) Rule {
	return c.rules[c.byID[id]]
}

// Rules returns a copy of all rules in catalog order.
func (c *Catalog) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// ByCategory returns the rules of one category in catalog order.
func (c *Catalog) ByCategory(cat Category) []Rule {
	var out []Rule
	for _, r := range c.rules {
		if r.Category == cat {
			out = append(out, r)
		}
	}
	return out
}

// ownerOf returns the first rule of cat whose trigger letters contain
// letter.
func (c *Catalog) ownerOf(cat Category, letter rune) (Rule, bool) {
	for _, r := range c.rules {
		if r.Category == cat && r.Triggers(letter) {
			return r, true
		}
	}
	return Rule{}, false
}
