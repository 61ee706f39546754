package config

import (
	"fmt"
	"log"

	"github.com/spf13/viper"
)

type Config struct {
	Port       string `mapstructure:"PORT"`
	Env        string `mapstructure:"ENV"`
	AuthSecret string `mapstructure:"AUTH_SECRET"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string `mapstructure:"REDIS_URL"`
	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`

	MinGapHours          float64 `mapstructure:"MIN_GAP_HOURS"`
	CacheTTLHours        int     `mapstructure:"INTERACTION_CACHE_TTL_HOURS"`
	CacheMaxEntries      int     `mapstructure:"INTERACTION_CACHE_MAX_ENTRIES"`
	NotifyTimeoutSeconds int     `mapstructure:"NOTIFY_TIMEOUT_SECONDS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("MIN_GAP_HOURS", 4)
	v.SetDefault("INTERACTION_CACHE_TTL_HOURS", 72)
	v.SetDefault("INTERACTION_CACHE_MAX_ENTRIES", 500)
	v.SetDefault("NOTIFY_TIMEOUT_SECONDS", 10)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("AUTH_SECRET")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("REDIS_URL")
	v.BindEnv("RABBITMQ_URL")
	v.BindEnv("MIN_GAP_HOURS")
	v.BindEnv("INTERACTION_CACHE_TTL_HOURS")
	v.BindEnv("INTERACTION_CACHE_MAX_ENTRIES")
	v.BindEnv("NOTIFY_TIMEOUT_SECONDS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.IsDev() && cfg.AuthSecret == "" {
		log.Println("WARNING: no AUTH_SECRET set; all requests run as the dev actor")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Production
// refuses to start without authentication; the safety engine's knobs
// must stay inside their sane ranges everywhere.
func (c *Config) Validate() error {
	if c.IsProduction() && c.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET is required in production")
	}
	if c.MinGapHours <= 0 || c.MinGapHours > 12 {
		return fmt.Errorf("MIN_GAP_HOURS must be in (0, 12], got %v", c.MinGapHours)
	}
	if c.CacheTTLHours <= 0 {
		return fmt.Errorf("INTERACTION_CACHE_TTL_HOURS must be positive, got %d", c.CacheTTLHours)
	}
	if c.CacheMaxEntries <= 0 {
		return fmt.Errorf("INTERACTION_CACHE_MAX_ENTRIES must be positive, got %d", c.CacheMaxEntries)
	}
	if c.NotifyTimeoutSeconds <= 0 {
		return fmt.Errorf("NOTIFY_TIMEOUT_SECONDS must be positive, got %d", c.NotifyTimeoutSeconds)
	}
	return nil
}
