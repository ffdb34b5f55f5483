package events

// Config holds session feed settings.
type Config struct {
	// Buffer is the per-subscriber queue length. Events beyond it are dropped
	// for that subscriber only.
	Buffer int `json:"buffer,omitempty" mapstructure:"buffer" yaml:"buffer,omitempty"`
}

func DefaultConfig() Config {
	return Config{Buffer: 64}
}

func (c *Config) Merge(source *Config) {
	if source.Buffer > 0 {
		c.Buffer = source.Buffer
	}
}
