package memory

// Config holds memory store initialization parameters.
type Config struct {
	// Path is the FileStore root directory. Empty selects an in-process store.
	Path string `json:"path,omitempty" mapstructure:"path" yaml:"path,omitempty"`
	// RecentTrips bounds how many saved trips are folded into a user context.
	RecentTrips int `json:"recent_trips,omitempty" mapstructure:"recent_trips" yaml:"recent_trips,omitempty"`
}

// DefaultConfig returns the default memory configuration.
func DefaultConfig() Config {
	return Config{RecentTrips: 5}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Path != "" {
		c.Path = source.Path
	}
	if source.RecentTrips > 0 {
		c.RecentTrips = source.RecentTrips
	}
}

// NewStore creates a Store from configuration. An empty Path yields an
// in-memory store that does not survive restarts.
func NewStore(cfg *Config) (Store, error) {
	if cfg.Path == "" {
		return NewMemStore(), nil
	}
	return NewFileStore(cfg.Path), nil
}
