package auth

import (
	"time"

	"github.com/Goden-Gun/transport-core/pkg/config"
)

// DefaultIssuer is stamped on channel tokens when Config.Issuer is empty.
const DefaultIssuer = "transport-core"

// Config controls channel token signing and validation.
// Secret: shared HS256 key. TTL: token lifetime.
type Config struct {
	Secret    string
	Issuer    string
	TTL       time.Duration
	ClockSkew time.Duration
}

// Defaults fills zero values.
func (c *Config) Defaults() {
	if c.Issuer == "" {
		c.Issuer = DefaultIssuer
	}
	if c.TTL <= 0 {
		c.TTL = 24 * time.Hour
	}
	if c.ClockSkew < 0 {
		c.ClockSkew = 0
	}
}

// Enabled reports whether tokens can be issued and verified.
func (c Config) Enabled() bool {
	return c.Secret != ""
}

// FromConfig maps the loaded auth section.
func FromConfig(c config.AuthConfig) Config {
	cfg := Config{
		Secret:    c.SecretKey,
		Issuer:    c.Issuer,
		TTL:       c.TokenTTL.Duration(),
		ClockSkew: c.ClockSkew.Duration(),
	}
	cfg.Defaults()
	return cfg
}
