package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Port                 string        `mapstructure:"PORT"`
	Env                  string        `mapstructure:"ENV"`
	DatabaseURL          string        `mapstructure:"DATABASE_URL"`
	DBMaxConns           int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns           int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir        string        `mapstructure:"MIGRATIONS_DIR"`
	RedisURL             string        `mapstructure:"REDIS_URL"`
	NatsURL              string        `mapstructure:"NATS_URL"`
	AuthIssuer           string        `mapstructure:"AUTH_ISSUER"`
	AuthSigningKey       string        `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins          []string      `mapstructure:"CORS_ORIGINS"`
	AlertDedupWindow     time.Duration `mapstructure:"ALERT_DEDUP_WINDOW"`
	BackfillWindowMonths int           `mapstructure:"BACKFILL_WINDOW_MONTHS"`
	MedicationCacheTTL   time.Duration `mapstructure:"MEDICATION_CACHE_TTL"`
}

var envKeys = []string{
	"PORT",
	"ENV",
	"DATABASE_URL",
	"DB_MAX_CONNS",
	"DB_MIN_CONNS",
	"MIGRATIONS_DIR",
	"REDIS_URL",
	"NATS_URL",
	"AUTH_ISSUER",
	"AUTH_SIGNING_KEY",
	"CORS_ORIGINS",
	"ALERT_DEDUP_WINDOW",
	"BACKFILL_WINDOW_MONTHS",
	"MEDICATION_CACHE_TTL",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("ALERT_DEDUP_WINDOW", "168h")
	v.SetDefault("BACKFILL_WINDOW_MONTHS", 4)
	v.SetDefault("MEDICATION_CACHE_TTL", "5m")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Warn().Msg("running in development mode: every unauthenticated request is treated as admin")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// BackfillSince converts BACKFILL_WINDOW_MONTHS into the look-back cutoff
// relative to now.
func (c *Config) BackfillSince(now time.Time) time.Time {
	return now.AddDate(0, -c.BackfillWindowMonths, 0)
}

// Validate checks that the configuration is safe to run. Outside development
// a token signing key is mandatory, and the alerting windows must be positive.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is required when ENV=%q", c.Env)
	}
	if c.AlertDedupWindow <= 0 {
		return fmt.Errorf("ALERT_DEDUP_WINDOW must be positive, got %s", c.AlertDedupWindow)
	}
	if c.BackfillWindowMonths <= 0 {
		return fmt.Errorf("BACKFILL_WINDOW_MONTHS must be positive, got %d", c.BackfillWindowMonths)
	}
	if c.MedicationCacheTTL <= 0 {
		return fmt.Errorf("MEDICATION_CACHE_TTL must be positive, got %s", c.MedicationCacheTTL)
	}
	return nil
}
