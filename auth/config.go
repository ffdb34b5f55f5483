package auth

import "fmt"

// Verifier modes.
const (
	ModeNone   = "none"
	ModeStatic = "static"
	ModeJWT    = "jwt"
)

// Config selects and configures the token verifier.
type Config struct {
	Mode           string            `json:"mode,omitempty" mapstructure:"mode" yaml:"mode,omitempty"`
	Secret         string            `json:"secret,omitempty" mapstructure:"secret" yaml:"secret,omitempty"`
	Issuer         string            `json:"issuer,omitempty" mapstructure:"issuer" yaml:"issuer,omitempty"`
	Audience       string            `json:"audience,omitempty" mapstructure:"audience" yaml:"audience,omitempty"`
	Tokens         map[string]string `json:"tokens,omitempty" mapstructure:"tokens" yaml:"tokens,omitempty"`
	AllowAnonymous *bool             `json:"allow_anonymous,omitempty" mapstructure:"allow_anonymous" yaml:"allow_anonymous,omitempty"`
}

// DefaultConfig accepts every caller anonymously.
func DefaultConfig() Config {
	allow := true
	return Config{
		Mode:           ModeNone,
		AllowAnonymous: &allow,
	}
}

func (c *Config) Merge(source *Config) {
	if source.Mode != "" {
		c.Mode = source.Mode
	}
	if source.Secret != "" {
		c.Secret = source.Secret
	}
	if source.Issuer != "" {
		c.Issuer = source.Issuer
	}
	if source.Audience != "" {
		c.Audience = source.Audience
	}
	if len(source.Tokens) > 0 {
		if c.Tokens == nil {
			c.Tokens = make(map[string]string, len(source.Tokens))
		}
		for token, uid := range source.Tokens {
			c.Tokens[token] = uid
		}
	}
	if source.AllowAnonymous != nil {
		allow := *source.AllowAnonymous
		c.AllowAnonymous = &allow
	}
}

// Anonymous reports whether requests without a token are accepted.
func (c *Config) Anonymous() bool {
	return c.AllowAnonymous == nil || *c.AllowAnonymous
}

// NewVerifier creates the verifier selected by cfg.Mode. ModeNone returns a
// verifier that rejects every token, so only anonymous access remains.
func NewVerifier(cfg *Config) (Verifier, error) {
	switch cfg.Mode {
	case "", ModeNone:
		return StaticVerifier{}, nil
	case ModeStatic:
		return StaticVerifier(cfg.Tokens), nil
	case ModeJWT:
		return NewJWTVerifier(cfg.Secret, cfg.Issuer, cfg.Audience)
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}
