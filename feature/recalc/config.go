package recalc

// Config holds configuration for recalculation.
type Config struct {
	// WindowSize is the number of ranked rows per transaction.
	WindowSize int `mapstructure:"window_size" default:"100"`
	// GroupSize is the number of rows per group and batch.
	GroupSize int `mapstructure:"group_size" default:"100"`
	// SampleSize is the number of rows shown per registry and boundary.
	SampleSize int `mapstructure:"sample_size" default:"5"`
}

// Options converts the configuration.
func (c Config) Options() Options {
	return Options{WindowSize: c.WindowSize, GroupSize: c.GroupSize}
}
