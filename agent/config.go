package agent

import (
	"time"

	"github.com/jurni-app/planner/agent/providers"
)

// Backend names accepted by Config.Backend.
const (
	BackendMock = "mock"
	BackendHTTP = "http"
)

// Config holds sub-agent configuration shared by every phase.
type Config struct {
	// Backend selects the generative backend: mock or http.
	Backend string `json:"backend,omitempty" mapstructure:"backend" yaml:"backend,omitempty"`
	// Script is a mock backend YAML script; empty plays the built-in one.
	Script   string           `json:"script,omitempty" mapstructure:"script" yaml:"script,omitempty"`
	Provider providers.Config `json:"provider" mapstructure:"provider" yaml:"provider,omitempty"`

	Retries        int           `json:"retries,omitempty" mapstructure:"retries" yaml:"retries,omitempty"`
	RetryBackoff   time.Duration `json:"retry_backoff,omitempty" mapstructure:"retry_backoff" yaml:"retry_backoff,omitempty"`
	AttemptTimeout time.Duration `json:"attempt_timeout,omitempty" mapstructure:"attempt_timeout" yaml:"attempt_timeout,omitempty"`
	BufferSize     int           `json:"buffer_size,omitempty" mapstructure:"buffer_size" yaml:"buffer_size,omitempty"`
	HistoryLimit   int           `json:"history_limit,omitempty" mapstructure:"history_limit" yaml:"history_limit,omitempty"`
}

// DefaultConfig returns the default sub-agent configuration.
//
// Default values:
//   - Backend: mock
//   - Retries: 1
//   - RetryBackoff: 200ms
//   - AttemptTimeout: 30s
//   - BufferSize: 16
//   - HistoryLimit: 40 messages
func DefaultConfig() Config {
	return Config{
		Backend:        BackendMock,
		Provider:       providers.DefaultConfig(),
		Retries:        1,
		RetryBackoff:   200 * time.Millisecond,
		AttemptTimeout: 30 * time.Second,
		BufferSize:     16,
		HistoryLimit:   40,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Backend != "" {
		c.Backend = source.Backend
	}
	if source.Script != "" {
		c.Script = source.Script
	}
	c.Provider.Merge(&source.Provider)
	if source.Retries > 0 {
		c.Retries = source.Retries
	}
	if source.RetryBackoff > 0 {
		c.RetryBackoff = source.RetryBackoff
	}
	if source.AttemptTimeout > 0 {
		c.AttemptTimeout = source.AttemptTimeout
	}
	if source.BufferSize > 0 {
		c.BufferSize = source.BufferSize
	}
	if source.HistoryLimit > 0 {
		c.HistoryLimit = source.HistoryLimit
	}
}
