package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jurni-app/planner/auth"
	"github.com/jurni-app/planner/orchestrator"
)

// EnvPrefix prefixes environment overrides, e.g. PLANNER_ADDR or
// PLANNER_ORCHESTRATOR_SESSION_BACKEND.
const EnvPrefix = "PLANNER"

// Config is the root configuration of the planner service.
type Config struct {
	// Addr is the listen address
	Addr string `json:"addr,omitempty" mapstructure:"addr" yaml:"addr,omitempty"`

	// BasePath prefixes the REST routes
	BasePath string `json:"base_path,omitempty" mapstructure:"base_path" yaml:"base_path,omitempty"`

	// AllowedOrigins lists CORS and websocket origins; empty allows any
	AllowedOrigins []string `json:"allowed_origins,omitempty" mapstructure:"allowed_origins" yaml:"allowed_origins,omitempty"`

	// Heartbeat is the SSE keep-alive interval
	Heartbeat time.Duration `json:"heartbeat,omitempty" mapstructure:"heartbeat" yaml:"heartbeat,omitempty"`

	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `json:"shutdown_timeout,omitempty" mapstructure:"shutdown_timeout" yaml:"shutdown_timeout,omitempty"`

	Auth         auth.Config         `json:"auth" mapstructure:"auth" yaml:"auth"`
	Orchestrator orchestrator.Config `json:"orchestrator" mapstructure:"orchestrator" yaml:"orchestrator"`
}

func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		BasePath:        "/v1/travel-planner",
		Heartbeat:       15 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		Auth:            auth.DefaultConfig(),
		Orchestrator:    orchestrator.DefaultConfig(),
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Addr != "" {
		c.Addr = source.Addr
	}
	if source.BasePath != "" {
		c.BasePath = source.BasePath
	}
	if len(source.AllowedOrigins) > 0 {
		c.AllowedOrigins = append([]string(nil), source.AllowedOrigins...)
	}
	if source.Heartbeat > 0 {
		c.Heartbeat = source.Heartbeat
	}
	if source.ShutdownTimeout > 0 {
		c.ShutdownTimeout = source.ShutdownTimeout
	}

	c.Auth.Merge(&source.Auth)
	c.Orchestrator.Merge(&source.Orchestrator)
}

// envKeys are the settings that can be overridden from the environment
// without appearing in a config file.
var envKeys = []string{
	"addr",
	"base_path",
	"heartbeat",
	"auth.mode",
	"auth.secret",
	"auth.issuer",
	"auth.audience",
	"auth.allow_anonymous",
	"orchestrator.observer",
	"orchestrator.turn_timeout",
	"orchestrator.agent.backend",
	"orchestrator.agent.script",
	"orchestrator.agent.provider.base_url",
	"orchestrator.agent.provider.api_key",
	"orchestrator.session.backend",
	"orchestrator.session.path",
	"orchestrator.session.nats.url",
	"orchestrator.session.nats.bucket",
	"orchestrator.memory.path",
}

// LoadConfig reads an optional JSON or YAML file and PLANNER_* environment
// overrides, and merges them over DefaultConfig. An empty path reads the
// environment only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var loaded Config
	if err := v.Unmarshal(&loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := DefaultConfig()
	cfg.Merge(&loaded)
	return &cfg, nil
}
