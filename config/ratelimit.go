package config

import "time"

// RateLimitConfig controls the sliding-window limiter applied by the request gate.
type RateLimitConfig struct {
	Enabled       bool          `env:"RATE_LIMIT_ENABLED"        envDefault:"true"`
	Max           int           `env:"RATE_LIMIT_MAX"            envDefault:"100"`
	Window        time.Duration `env:"RATE_LIMIT_WINDOW"         envDefault:"1m"`
	SweepInterval time.Duration `env:"RATE_LIMIT_SWEEP_INTERVAL" envDefault:"1m"`
}

// Sanitize clamps limiter settings to usable values.
func (c *RateLimitConfig) Sanitize() {
	if c.Max <= 0 {
		c.Max = 100
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = c.Window
	}
}
