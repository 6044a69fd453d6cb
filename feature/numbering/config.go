package numbering

// Config holds configuration for identifier generation.
type Config struct {
	// LayoutFile is a YAML layout. Empty uses DefaultLayout.
	LayoutFile string `mapstructure:"layout_file" default:""`
	// NumbersPerYear overrides the layout when positive.
	NumbersPerYear int `mapstructure:"numbers_per_year" default:"0"`
	// GroupSize overrides the layout when positive.
	GroupSize int `mapstructure:"group_size" default:"0"`
	// Guarantee is the tracking id uniqueness level (probabilistic, run, persisted).
	Guarantee string `mapstructure:"guarantee" default:"run"`
	// InsertBatch is the number of identifiers per insert transaction.
	InsertBatch int `mapstructure:"insert_batch" default:"1000"`
	// Table is the identifier table.
	Table string `mapstructure:"table" default:"file_groupings"`
}

// Layout resolves the configured layout.
func (c Config) Layout() (Layout, error) {
	layout := DefaultLayout()
	if c.LayoutFile != "" {
		var err error
		if layout, err = LoadLayout(c.LayoutFile); err != nil {
			return Layout{}, err
		}
	}
	if c.NumbersPerYear > 0 {
		layout.NumbersPerYear = c.NumbersPerYear
	}
	if c.GroupSize > 0 {
		layout.GroupSize = c.GroupSize
	}
	return layout, layout.Validate()
}
