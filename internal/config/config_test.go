package config

import (
	"os"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	os.Unsetenv("PORT")
	os.Unsetenv("MIN_GAP_HOURS")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != "8000" {
		t.Errorf("expected default port 8000, got %s", cfg.Port)
	}
	if cfg.MinGapHours != 4 {
		t.Errorf("expected default minimum gap 4h, got %v", cfg.MinGapHours)
	}
	if cfg.CacheTTLHours != 72 {
		t.Errorf("expected default cache TTL 72h, got %d", cfg.CacheTTLHours)
	}
	if cfg.CacheMaxEntries != 500 {
		t.Errorf("expected default cache size 500, got %d", cfg.CacheMaxEntries)
	}
	if cfg.DBMaxConns != 20 {
		t.Errorf("expected default max conns 20, got %d", cfg.DBMaxConns)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	os.Setenv("MIN_GAP_HOURS", "6")
	os.Setenv("REDIS_URL", "redis://localhost:6379/0")
	defer os.Unsetenv("MIN_GAP_HOURS")
	defer os.Unsetenv("REDIS_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.MinGapHours != 6 {
		t.Errorf("expected MIN_GAP_HOURS override, got %v", cfg.MinGapHours)
	}
	if cfg.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("expected REDIS_URL override, got %s", cfg.RedisURL)
	}
}

func TestConfig_IsDev(t *testing.T) {
	c := &Config{Env: "development"}
	if !c.IsDev() {
		t.Error("expected IsDev() to return true for development")
	}

	c.Env = "production"
	if c.IsDev() {
		t.Error("expected IsDev() to return false for production")
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		Env:                  "development",
		MinGapHours:          4,
		CacheTTLHours:        72,
		CacheMaxEntries:      500,
		NotifyTimeoutSeconds: 10,
	}

	if err := base.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	prod := base
	prod.Env = "production"
	if err := prod.Validate(); err == nil {
		t.Error("production without AUTH_SECRET must be rejected")
	}
	prod.AuthSecret = "secret"
	if err := prod.Validate(); err != nil {
		t.Errorf("production with AUTH_SECRET rejected: %v", err)
	}

	gap := base
	gap.MinGapHours = 0
	if err := gap.Validate(); err == nil {
		t.Error("zero minimum gap must be rejected")
	}
	gap.MinGapHours = 13
	if err := gap.Validate(); err == nil {
		t.Error("minimum gap above 12h must be rejected")
	}

	cache := base
	cache.CacheMaxEntries = 0
	if err := cache.Validate(); err == nil {
		t.Error("zero cache size must be rejected")
	}
}
