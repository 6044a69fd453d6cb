package numbering

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidLayout is returned when a layout cannot produce numbers.
var ErrInvalidLayout = errors.New("invalid numbering layout")

// RegistryDefinition is one block of the generation order.
type RegistryDefinition struct {
	// ID names the registry the block is generated for.
	ID string `yaml:"id"`
	// Categories are generated in order.
	Categories []string `yaml:"categories"`
	// StartYear and EndYear bound the generated years, inclusive.
	StartYear int `yaml:"start_year"`
	EndYear   int `yaml:"end_year"`
}

// YearWindow assigns non-conversion categories to a registry by year.
type YearWindow struct {
	Registry string `yaml:"registry"`
	Start    int    `yaml:"start"`
	End      int    `yaml:"end"`
}

// Layout describes what the generator produces and how registries are assigned.
type Layout struct {
	Registries         []RegistryDefinition `yaml:"registries"`
	Windows            []YearWindow         `yaml:"windows"`
	NumbersPerYear     int                  `yaml:"numbers_per_year"`
	GroupSize          int                  `yaml:"group_size"`
	ConversionMarker   string               `yaml:"conversion_marker"`
	ConversionRegistry string               `yaml:"conversion_registry"`
	// DefaultRegistry catches years outside every window. Empty means the
	// registry of the last window.
	DefaultRegistry string `yaml:"default_registry"`
}

// BaseCategories are the non-conversion categories.
var BaseCategories = []string{"RES", "COM", "AG", "RES-RC", "COM-RC", "AG-RC"}

// ConversionCategories carry the conversion marker.
var ConversionCategories = []string{"CON-RES", "CON-COM", "CON-AG", "CON-RES-RC", "CON-COM-RC", "CON-AG-RC"}

// DefaultLayout is the production land registry layout.
func DefaultLayout() Layout {
	return Layout{
		Registries: []RegistryDefinition{
			{ID: "1", Categories: BaseCategories, StartYear: 1981, EndYear: 1991},
			{ID: "2", Categories: BaseCategories, StartYear: 1992, EndYear: 2025},
			{ID: "3", Categories: ConversionCategories, StartYear: 1981, EndYear: 2025},
		},
		Windows: []YearWindow{
			{Registry: "1", Start: 1981, End: 1991},
			{Registry: "2", Start: 1992, End: 2025},
		},
		NumbersPerYear:     10000,
		GroupSize:          100,
		ConversionMarker:   "CON",
		ConversionRegistry: "3",
	}
}

// LoadLayout reads a YAML layout. Unset fields keep the defaults.
func LoadLayout(path string) (Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, fmt.Errorf("failed to read layout %s: %w", path, err)
	}
	layout := DefaultLayout()
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return Layout{}, fmt.Errorf("failed to parse layout %s: %w", path, err)
	}
	if err := layout.Validate(); err != nil {
		return Layout{}, err
	}
	return layout, nil
}

// Validate checks the fields the generator cannot work without.
// A registry with StartYear after EndYear is not an error; Generate skips it.
func (l Layout) Validate() error {
	switch {
	case l.NumbersPerYear <= 0:
		return fmt.Errorf("%w: numbers_per_year must be positive", ErrInvalidLayout)
	case l.GroupSize <= 0:
		return fmt.Errorf("%w: group_size must be positive", ErrInvalidLayout)
	case len(l.Registries) == 0:
		return fmt.Errorf("%w: no registries", ErrInvalidLayout)
	}
	for i, r := range l.Registries {
		if r.ID == "" {
			return fmt.Errorf("%w: registry %d has no id", ErrInvalidLayout, i+1)
		}
	}
	return nil
}

// AssignRegistry returns the registry of a category in a year. A category
// carrying the conversion marker always goes to the conversion registry.
func (l Layout) AssignRegistry(category string, year int) string {
	if l.ConversionMarker != "" && strings.Contains(category, l.ConversionMarker) {
		return l.ConversionRegistry
	}
	for _, w := range l.Windows {
		if year >= w.Start && year <= w.End {
			return w.Registry
		}
	}
	return l.fallbackRegistry()
}

func (l Layout) fallbackRegistry() string {
	if l.DefaultRegistry != "" {
		return l.DefaultRegistry
	}
	if len(l.Windows) > 0 {
		return l.Windows[len(l.Windows)-1].Registry
	}
	return "2"
}

// SetWindow replaces or adds the window of a registry.
func (l *Layout) SetWindow(w YearWindow) {
	for i := range l.Windows {
		if l.Windows[i].Registry == w.Registry {
			l.Windows[i] = w
			return
		}
	}
	l.Windows = append(l.Windows, w)
}

// ParseWindow parses "registry=start-end", e.g. "1=1981-1991".
func ParseWindow(s string) (YearWindow, error) {
	registry, span, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(registry) == "" {
		return YearWindow{}, fmt.Errorf("window must be registry=start-end: %q", s)
	}
	from, to, ok := strings.Cut(span, "-")
	if !ok {
		return YearWindow{}, fmt.Errorf("window must be registry=start-end: %q", s)
	}
	start, err := strconv.Atoi(strings.TrimSpace(from))
	if err != nil {
		return YearWindow{}, fmt.Errorf("invalid window start in %q: %w", s, err)
	}
	end, err := strconv.Atoi(strings.TrimSpace(to))
	if err != nil {
		return YearWindow{}, fmt.Errorf("invalid window end in %q: %w", s, err)
	}
	return YearWindow{Registry: strings.TrimSpace(registry), Start: start, End: end}, nil
}

// LandUse derives the land use from a category or file reference by
// first-match substring priority.
func LandUse(s string) string {
	switch {
	case strings.Contains(s, "RES"):
		return "Residential"
	case strings.Contains(s, "COM"):
		return "Commercial"
	case strings.Contains(s, "IND"):
		return "Industrial"
	case strings.Contains(s, "AG"):
		return "Agriculture"
	default:
		return "Unknown"
	}
}
