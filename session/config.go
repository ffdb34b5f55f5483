package session

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/jurni-app/planner/memory"
)

// Backend names accepted by Config.Backend.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendNATS   = "nats"
)

// NATSConfig locates the JetStream key-value bucket holding sessions.
type NATSConfig struct {
	URL    string `json:"url,omitempty" mapstructure:"url" yaml:"url,omitempty"`
	Bucket string `json:"bucket,omitempty" mapstructure:"bucket" yaml:"bucket,omitempty"`
}

// Config holds session store initialization parameters.
type Config struct {
	Backend         string        `json:"backend,omitempty" mapstructure:"backend" yaml:"backend,omitempty"`
	Path            string        `json:"path,omitempty" mapstructure:"path" yaml:"path,omitempty"`
	NATS            NATSConfig    `json:"nats" mapstructure:"nats" yaml:"nats,omitempty"`
	ConflictRetries int           `json:"conflict_retries,omitempty" mapstructure:"conflict_retries" yaml:"conflict_retries,omitempty"`
	ConflictBackoff time.Duration `json:"conflict_backoff,omitempty" mapstructure:"conflict_backoff" yaml:"conflict_backoff,omitempty"`
}

// DefaultConfig returns the default session configuration.
//
// Default values:
//   - Backend: memory
//   - NATS.URL: nats://127.0.0.1:4222
//   - NATS.Bucket: planner-sessions
//   - ConflictRetries: 5
//   - ConflictBackoff: 10ms
func DefaultConfig() Config {
	return Config{
		Backend: BackendMemory,
		NATS: NATSConfig{
			URL:    nats.DefaultURL,
			Bucket: "planner-sessions",
		},
		ConflictRetries: 5,
		ConflictBackoff: 10 * time.Millisecond,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Backend != "" {
		c.Backend = source.Backend
	}
	if source.Path != "" {
		c.Path = source.Path
	}
	if source.NATS.URL != "" {
		c.NATS.URL = source.NATS.URL
	}
	if source.NATS.Bucket != "" {
		c.NATS.Bucket = source.NATS.Bucket
	}
	if source.ConflictRetries > 0 {
		c.ConflictRetries = source.ConflictRetries
	}
	if source.ConflictBackoff > 0 {
		c.ConflictBackoff = source.ConflictBackoff
	}
}

// New creates a Store from configuration. The returned cleanup function
// releases backend connections and is always safe to call.
func New(ctx context.Context, cfg *Config) (Store, func(), error) {
	noop := func() {}
	opts := []DocumentOption{
		WithConflictRetries(cfg.ConflictRetries),
		WithConflictBackoff(cfg.ConflictBackoff),
	}

	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), noop, nil

	case BackendFile:
		if cfg.Path == "" {
			return nil, noop, fmt.Errorf("session backend %s requires a path", BackendFile)
		}
		docs := NewKeyValueDocuments(memory.NewFileStore(cfg.Path))
		return NewDocumentStore(docs, opts...), noop, nil

	case BackendNATS:
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("planner-sessions"))
		if err != nil {
			return nil, noop, fmt.Errorf("connect %s: %w", cfg.NATS.URL, err)
		}
		js, err := jetstream.New(nc)
		if err != nil {
			nc.Close()
			return nil, noop, fmt.Errorf("jetstream: %w", err)
		}
		docs, err := NewKVDocuments(ctx, js, cfg.NATS.Bucket)
		if err != nil {
			nc.Close()
			return nil, noop, err
		}
		return NewDocumentStore(docs, opts...), func() { nc.Drain() }, nil

	default:
		return nil, noop, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}
