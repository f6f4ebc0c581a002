package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all service settings, read from ISSUEDESK_* environment
// variables.
type Config struct {
	Addr         string        `env:"ISSUEDESK_ADDR"            envDefault:":8080"`
	PostgresDSN  string        `env:"ISSUEDESK_PG_DSN"`
	AuthSecret   string        `env:"ISSUEDESK_AUTH_SECRET"`
	AccessTTL    time.Duration `env:"ISSUEDESK_ACCESS_TTL"      envDefault:"15m"`
	RefreshTTL   time.Duration `env:"ISSUEDESK_REFRESH_TTL"     envDefault:"168h"`
	ClientOrigin string        `env:"ISSUEDESK_CLIENT_ORIGIN"   envDefault:"http://localhost:5173"`

	CookieSecure   bool   `env:"ISSUEDESK_COOKIE_SECURE"   envDefault:"false"`
	CookieSameSite string `env:"ISSUEDESK_COOKIE_SAMESITE" envDefault:"lax"`
}

const minSecretLength = 20

// Load parses configuration from the environment. Validation errors
// name the offending variable but never echo secret values.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.AuthSecret) == "" {
		return errors.New("ISSUEDESK_AUTH_SECRET is required")
	}
	if len(c.AuthSecret) < minSecretLength {
		return fmt.Errorf("ISSUEDESK_AUTH_SECRET must be at least %d characters", minSecretLength)
	}
	if c.AccessTTL <= 0 {
		return errors.New("ISSUEDESK_ACCESS_TTL must be positive")
	}
	if c.RefreshTTL <= c.AccessTTL {
		return errors.New("ISSUEDESK_REFRESH_TTL must exceed ISSUEDESK_ACCESS_TTL")
	}
	switch strings.ToLower(c.CookieSameSite) {
	case "lax", "strict", "none":
	default:
		return fmt.Errorf("ISSUEDESK_COOKIE_SAMESITE must be lax, strict or none, got %q", c.CookieSameSite)
	}
	return nil
}
