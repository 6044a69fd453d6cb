package control

// Config holds configuration for the shared control board.
type Config struct {
	// URL is the Redis connection URL. Empty keeps runs on an in-process board.
	URL string `mapstructure:"url" default:""`
	// KeyPrefix namespaces board keys.
	KeyPrefix string `mapstructure:"key_prefix" default:"fileno:"`
	// LockTTLSeconds bounds how long a crashed run keeps its table locked.
	LockTTLSeconds int `mapstructure:"lock_ttl_seconds" default:"21600"`
	// StatusTTLSeconds is how long snapshots stay readable after a run.
	StatusTTLSeconds int `mapstructure:"status_ttl_seconds" default:"86400"`
	// DialTimeoutSeconds bounds connection setup.
	DialTimeoutSeconds int `mapstructure:"dial_timeout_seconds" default:"5"`
}
