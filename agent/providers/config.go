package providers

import "time"

// Config describes a backend connection.
type Config struct {
	Name    string            `json:"name,omitempty" mapstructure:"name" yaml:"name,omitempty"`
	BaseURL string            `json:"base_url,omitempty" mapstructure:"base_url" yaml:"base_url,omitempty"`
	Path    string            `json:"path,omitempty" mapstructure:"path" yaml:"path,omitempty"`
	APIKey  string            `json:"api_key,omitempty" mapstructure:"api_key" yaml:"api_key,omitempty"`
	Headers map[string]string `json:"headers,omitempty" mapstructure:"headers" yaml:"headers,omitempty"`
	Options map[string]any    `json:"options,omitempty" mapstructure:"options" yaml:"options,omitempty"`
	// ConnectTimeout bounds the wait for response headers. Streaming bodies
	// are bounded by the caller's context instead.
	ConnectTimeout time.Duration `json:"connect_timeout,omitempty" mapstructure:"connect_timeout" yaml:"connect_timeout,omitempty"`
}

// DefaultConfig returns the default backend configuration.
func DefaultConfig() Config {
	return Config{
		Name:           "http",
		Path:           "/v1/turns",
		ConnectTimeout: 10 * time.Second,
	}
}

// Merge applies non-zero values from source into c. Header and option maps
// are merged key by key.
func (c *Config) Merge(source *Config) {
	if source.Name != "" {
		c.Name = source.Name
	}
	if source.BaseURL != "" {
		c.BaseURL = source.BaseURL
	}
	if source.Path != "" {
		c.Path = source.Path
	}
	if source.APIKey != "" {
		c.APIKey = source.APIKey
	}
	if source.ConnectTimeout > 0 {
		c.ConnectTimeout = source.ConnectTimeout
	}
	if len(source.Headers) > 0 {
		if c.Headers == nil {
			c.Headers = make(map[string]string, len(source.Headers))
		}
		for k, v := range source.Headers {
			c.Headers[k] = v
		}
	}
	if len(source.Options) > 0 {
		if c.Options == nil {
			c.Options = make(map[string]any, len(source.Options))
		}
		for k, v := range source.Options {
			c.Options[k] = v
		}
	}
}
