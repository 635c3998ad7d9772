package tajweed

import "fmt"

// Category is the closed set of Tajweed rule families.
type Category int

const (
	CategoryArticulation Category = iota
	CategoryElongation
	CategoryNasalization
	CategoryAssimilation
	CategorySubstitution
	CategoryClearPronunciation
	CategoryHiding
	CategoryEchoing
	CategoryHeavyLight
	CategoryStopping

	categoryCount
)

var categoryNames = [categoryCount]string{
	CategoryArticulation:       "articulation",
	CategoryElongation:         "elongation",
	CategoryNasalization:       "nasalization",
	CategoryAssimilation:       "assimilation",
	CategorySubstitution:       "substitution",
	CategoryClearPronunciation: "clear_pronunciation",
	CategoryHiding:             "hiding",
	CategoryEchoing:            "echoing",
	CategoryHeavyLight:         "heavy_light",
	CategoryStopping:           "stopping",
}

// AllCategories returns every category in declaration order.
func AllCategories() []Category {
	out := make([]Category, categoryCount)
	for i := range out {
		out[i] = Category(i)
	}
	return out
}

// String returns the snake_case name used in YAML and JSON.
func (c Category) String() string {
	if c.valid() {
		return categoryNames[c]
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

func (c Category) valid() bool { return c >= 0 && c < categoryCount }

// ParseCategory returns the category with the given name.
func ParseCategory(name string) (Category, error) {
	for i, n := range categoryNames {
		if n == name {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("tajweed: unknown category %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	if !c.valid() {
		return nil, fmt.Errorf("tajweed: invalid category %d", int(c))
	}
	return []byte(categoryNames[c]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(text []byte) error {
	v, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}
