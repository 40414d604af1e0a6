package config

import (
	"fmt"
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: Authentication modes, session tokens and OAuth/OIDC
//   - database.go: Storage backend, PostgreSQL and Redis
//   - http.go: HTTP server and cookie settings
//   - ratelimit.go: Request gate admission control
//   - reaper.go: Expired access token cleanup
type AppConfig struct {
	// IsDev controls development mode behavior (verbose logging, relaxed cookies).
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Authentication configuration
	Auth AuthConfig

	// Persistence configuration
	Storage      StorageBackend   `env:"STORAGE_BACKEND" envDefault:"postgres"`
	SessionStore SessionStoreKind `env:"SESSION_STORE"   envDefault:"memory"`
	Postgres     DBConfig         `envPrefix:"DB_"`
	Redis        RedisConfig      `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig
	// Expired access token cleanup
	TokenReaper TokenReaperConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Auth.Sanitize()
	c.HTTP.Sanitize()
	c.RateLimit.Sanitize()
	c.TokenReaper.Sanitize()
	c.Observability.Sanitize()
	if c.Storage == "" {
		c.Storage = StoragePostgres
	}
	if c.SessionStore == "" {
		c.SessionStore = SessionStoreMemory
	}

	// Check NODE_ENV for dev mode
	c.detectDevMode()
}

// Validate reports configuration that cannot be started with.
func (c *AppConfig) Validate() error {
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth config: %w", err)
	}
	return nil
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}
