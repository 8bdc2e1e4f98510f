package config

import (
	"testing"
	"time"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STR", "hello")
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_DUR", "90s")
	t.Setenv("TEST_BAD_INT", "abc")
	t.Setenv("TEST_BAD_DUR", "soon")

	if got := envStr("TEST_STR", "d"); got != "hello" {
		t.Errorf("envStr set = %q", got)
	}
	if got := envStr("TEST_MISSING", "d"); got != "d" {
		t.Errorf("envStr default = %q", got)
	}
	if got := envInt("TEST_INT", 7); got != 42 {
		t.Errorf("envInt set = %d", got)
	}
	if got := envInt("TEST_BAD_INT", 7); got != 7 {
		t.Errorf("envInt bad value = %d, want default", got)
	}
	if got := envDur("TEST_DUR", time.Minute); got != 90*time.Second {
		t.Errorf("envDur set = %s", got)
	}
	if got := envDur("TEST_BAD_DUR", time.Minute); got != time.Minute {
		t.Errorf("envDur bad value = %s, want default", got)
	}
}

func TestLoadRateLimitConfigClamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "1")
	t.Setenv("RATE_LIMIT_REQUESTS", "0")
	t.Setenv("RATE_LIMIT_WINDOW", "1ms")

	cfg := LoadRateLimitConfig()
	if !cfg.Enabled {
		t.Error("expected limiter enabled")
	}
	if cfg.Limit < 1 {
		t.Errorf("limit not clamped: %d", cfg.Limit)
	}
	if cfg.Window < time.Second {
		t.Errorf("window not clamped: %s", cfg.Window)
	}
}
