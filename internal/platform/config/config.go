// Package config loads process configuration once at startup. Values come
// from struct defaults overlaid with AUDIT_* environment variables and are
// validated before any component is constructed.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix namespaces every environment variable read by Load.
const EnvPrefix = "AUDIT_"

// Config is the full process configuration.
type Config struct {
	Addr string `koanf:"addr" validate:"required"`

	// HMACSecret keys record signatures. Rotating it invalidates verification
	// of existing rows.
	HMACSecret     string        `koanf:"hmac_secret" validate:"required,min=16"`
	FailOpen       bool          `koanf:"fail_open"`
	WriteTimeout   time.Duration `koanf:"write_timeout" validate:"gte=0"`
	IPSalt         string        `koanf:"ip_salt" validate:"required"`
	IdentifierSalt string        `koanf:"identifier_salt" validate:"required"`
	BucketWindow   time.Duration `koanf:"bucket_window" validate:"gte=1m"`

	AdminJWTSecret  string `koanf:"admin_jwt_secret" validate:"omitempty,min=16"`
	ExportRateLimit int    `koanf:"export_rate_limit" validate:"gte=1"`

	LogFormat string `koanf:"log_format" validate:"oneof=json text"`
	LogLevel  string `koanf:"log_level" validate:"oneof=debug info warn error"`

	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
}

// DatabaseConfig configures the PostgreSQL pool. An empty URL selects the
// in-memory stores.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

// RedisConfig configures the optional Redis bucket store. An empty URL keeps
// buckets in the primary store.
type RedisConfig struct {
	URL          string        `koanf:"url"`
	PoolSize     int           `koanf:"pool_size" validate:"gte=1"`
	MinIdleConns int           `koanf:"min_idle_conns" validate:"gte=0"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	BucketTTL    time.Duration `koanf:"bucket_ttl"`
}

// Default returns the configuration used when no overrides are set.
func Default() Config {
	return Config{
		Addr:            ":8080",
		FailOpen:        true,
		BucketWindow:    5 * time.Minute,
		ExportRateLimit: 10,
		LogFormat:       "json",
		LogLevel:        "info",
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			BucketTTL:    24 * time.Hour,
		},
	}
}

// Load layers AUDIT_* environment variables over Default and validates the
// result.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load config environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// sections are nested config groups. AUDIT_REDIS_POOL_SIZE maps to
// redis.pool_size; AUDIT_HMAC_SECRET maps to hmac_secret.
var sections = []string{"database", "redis"}

func envKey(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	for _, s := range sections {
		if rest, ok := strings.CutPrefix(key, s+"_"); ok {
			return s + "." + rest
		}
	}
	return key
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

// RequireAdmin reports a missing admin token secret. Only the HTTP server
// needs it.
func (c *Config) RequireAdmin() error {
	if c.AdminJWTSecret == "" {
		return fmt.Errorf("%sADMIN_JWT_SECRET is required", EnvPrefix)
	}
	return nil
}

// RequireDatabase reports a missing database URL for tools that cannot run
// against the in-memory store.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return fmt.Errorf("%sDATABASE_URL is required", EnvPrefix)
	}
	return nil
}
