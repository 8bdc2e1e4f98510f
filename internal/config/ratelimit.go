package config

import "time"

// RateLimitConfig controls the Redis fixed-window request limiter applied to
// the authenticated API groups.  Allocation endpoints are mutation-heavy, so
// the limiter exists mainly to blunt retry storms from misbehaving clients.
type RateLimitConfig struct {
	Enabled bool          // master switch; also disabled when Redis is down
	Limit   int           // max requests per window per key
	Window  time.Duration // window size
	Prefix  string        // redis key prefix
}

// LoadRateLimitConfig reads the rate limiter settings from the environment
// and clamps nonsensical values to safe minimums.
func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled: envInt("RATE_LIMIT_ENABLED", 1) != 0,
		Limit:   envInt("RATE_LIMIT_REQUESTS", 120),
		Window:  envDur("RATE_LIMIT_WINDOW", time.Minute),
		Prefix:  envStr("RATE_LIMIT_PREFIX", "rl"),
	}
	if cfg.Limit < 1 {
		cfg.Limit = 1
	}
	if cfg.Window < time.Second {
		cfg.Window = time.Second
	}
	return cfg
}
