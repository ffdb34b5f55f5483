package orchestrator

import (
	"time"

	"github.com/jurni-app/planner/agent"
	"github.com/jurni-app/planner/events"
	"github.com/jurni-app/planner/memory"
	"github.com/jurni-app/planner/orchestrate/config"
	"github.com/jurni-app/planner/session"
)

// Config holds initialization parameters for the orchestrator and every
// subsystem it composes. Each section delegates to that subsystem's
// config-driven constructor.
type Config struct {
	// Observer names the observability registry entry receiving events
	Observer string `json:"observer,omitempty" mapstructure:"observer" yaml:"observer,omitempty"`

	Graph   config.GraphConfig `json:"graph" mapstructure:"graph" yaml:"graph"`
	Agent   agent.Config       `json:"agent" mapstructure:"agent" yaml:"agent"`
	Session session.Config     `json:"session" mapstructure:"session" yaml:"session"`
	Memory  memory.Config      `json:"memory" mapstructure:"memory" yaml:"memory"`
	Events  events.Config      `json:"events" mapstructure:"events" yaml:"events"`

	// TurnTimeout bounds the sub-agent delegation of one turn
	TurnTimeout time.Duration `json:"turn_timeout,omitempty" mapstructure:"turn_timeout" yaml:"turn_timeout,omitempty"`

	// LockTimeout bounds the wait for a session's lock; zero waits for the
	// caller's context only
	LockTimeout time.Duration `json:"lock_timeout,omitempty" mapstructure:"lock_timeout" yaml:"lock_timeout,omitempty"`

	// PersistRetries is the number of store retries after the first attempt
	PersistRetries int `json:"persist_retries,omitempty" mapstructure:"persist_retries" yaml:"persist_retries,omitempty"`

	// PersistBackoff is the initial retry interval
	PersistBackoff time.Duration `json:"persist_backoff,omitempty" mapstructure:"persist_backoff" yaml:"persist_backoff,omitempty"`

	// PersistTimeout bounds all persistence attempts of one turn
	PersistTimeout time.Duration `json:"persist_timeout,omitempty" mapstructure:"persist_timeout" yaml:"persist_timeout,omitempty"`

	// StreamBuffer is the outward event buffer per turn
	StreamBuffer int `json:"stream_buffer,omitempty" mapstructure:"stream_buffer" yaml:"stream_buffer,omitempty"`
}

// DefaultConfig returns a Config with defaults for all subsystems.
//
// Default values:
//   - Observer: "slog"
//   - Graph: the travel lifecycle
//   - TurnTimeout: 2m
//   - LockTimeout: 30s
//   - PersistRetries: 3, PersistBackoff: 100ms, PersistTimeout: 10s
//   - StreamBuffer: 32
func DefaultConfig() Config {
	return Config{
		Observer:       "slog",
		Graph:          config.DefaultGraphConfig("travel-lifecycle"),
		Agent:          agent.DefaultConfig(),
		Session:        session.DefaultConfig(),
		Memory:         memory.DefaultConfig(),
		Events:         events.DefaultConfig(),
		TurnTimeout:    2 * time.Minute,
		LockTimeout:    30 * time.Second,
		PersistRetries: 3,
		PersistBackoff: 100 * time.Millisecond,
		PersistTimeout: 10 * time.Second,
		StreamBuffer:   32,
	}
}

// Merge applies non-zero values from source into c, delegating to each
// subsystem's Merge method.
func (c *Config) Merge(source *Config) {
	if source.Observer != "" {
		c.Observer = source.Observer
	}

	c.Graph.Merge(&source.Graph)
	c.Agent.Merge(&source.Agent)
	c.Session.Merge(&source.Session)
	c.Memory.Merge(&source.Memory)
	c.Events.Merge(&source.Events)

	if source.TurnTimeout > 0 {
		c.TurnTimeout = source.TurnTimeout
	}
	if source.LockTimeout > 0 {
		c.LockTimeout = source.LockTimeout
	}
	if source.PersistRetries > 0 {
		c.PersistRetries = source.PersistRetries
	}
	if source.PersistBackoff > 0 {
		c.PersistBackoff = source.PersistBackoff
	}
	if source.PersistTimeout > 0 {
		c.PersistTimeout = source.PersistTimeout
	}
	if source.StreamBuffer > 0 {
		c.StreamBuffer = source.StreamBuffer
	}
}
