package config

import "time"

// TokenReaperConfig controls background deletion of expired access tokens.
type TokenReaperConfig struct {
	Enabled  bool          `env:"TOKEN_REAPER_ENABLED"  envDefault:"true"`
	Interval time.Duration `env:"TOKEN_REAPER_INTERVAL" envDefault:"1h"`
	// Retention keeps expired tokens listable for a while before they are deleted.
	Retention time.Duration `env:"TOKEN_REAPER_RETENTION" envDefault:"168h"`
}

// Sanitize applies defaults to non-positive durations.
func (c *TokenReaperConfig) Sanitize() {
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.Retention < 0 {
		c.Retention = 0
	}
}
