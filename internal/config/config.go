package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Kocoro-lab/snippets/internal/auth"
	"github.com/Kocoro-lab/snippets/internal/db"
	"github.com/Kocoro-lab/snippets/internal/policy"
	"github.com/Kocoro-lab/snippets/internal/tracing"
)

const (
	// DefaultPath is used when CONFIG_PATH is not set
	DefaultPath = "config/snippets.yaml"
	// EnvPrefix prefixes every environment override, e.g. SNIPPETS_SERVER_PORT
	EnvPrefix = "SNIPPETS"
	// DefaultJWTSecret is only suitable for local development
	DefaultJWTSecret = "change-this-to-a-secure-32-char-minimum-secret"
)

// Config is the full service configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  db.Config       `mapstructure:"database"`
	Auth      auth.Config     `mapstructure:"auth"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Policy    policy.Config   `mapstructure:"policy"`
	Tracing   tracing.Config  `mapstructure:"tracing"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
}

// ServerConfig controls the HTTP listener
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	// AppURL prefixes share links; empty yields relative paths
	AppURL     string `mapstructure:"app_url"`
	CORSOrigin string `mapstructure:"cors_origin"`
}

// RedisConfig configures the shared Redis client
type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// RateLimitConfig sets request budgets. Zero disables a limiter.
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	AuthPerMinute     int `mapstructure:"auth_per_minute"`
}

// LoggingConfig controls the zap logger
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// AnalysisConfig controls complexity analysis on snippet writes
type AnalysisConfig struct {
	AutoSuggest bool `mapstructure:"auto_suggest"`
}

// Path returns the config file location from CONFIG_PATH or DefaultPath
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads the config file at Path() and applies environment overrides.
// A missing file is not an error; defaults and environment still apply.
func Load() (*Config, error) {
	v, err := newViper(Path())
	if err != nil {
		return nil, err
	}
	return decode(v)
}

func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Policy.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.app_url", "")
	v.SetDefault("server.cors_origin", "*")

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.idle_connections", 5)
	v.SetDefault("database.max_lifetime", 5*time.Minute)
	v.SetDefault("database.seed", true)
	v.SetDefault("database.workers", 4)
	v.SetDefault("database.queue_size", 1000)

	v.SetDefault("auth.jwt_secret", DefaultJWTSecret)
	v.SetDefault("auth.token_ttl", 7*24*time.Hour)
	v.SetDefault("auth.issuer", "snippets")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "redis://localhost:6379/0")

	v.SetDefault("ratelimit.requests_per_minute", 120)
	v.SetDefault("ratelimit.auth_per_minute", 10)

	v.SetDefault("policy.enabled", true)
	v.SetDefault("policy.mode", string(policy.ModeEnforce))
	v.SetDefault("policy.path", "")
	v.SetDefault("policy.fail_closed", false)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "snippets")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")

	v.SetDefault("logging.level", "info")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("analysis.auto_suggest", true)
}

// Validate checks values that would otherwise fail later at startup
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite3 or postgres, got %q", c.Database.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.AuthPerMinute < 0 {
		return fmt.Errorf("ratelimit values must not be negative")
	}
	if c.Redis.Enabled && c.Redis.URL == "" {
		return fmt.Errorf("redis.url is required when redis is enabled")
	}
	return nil
}

// UsesDefaultSecret reports whether the JWT secret was left at its development value
func (c *Config) UsesDefaultSecret() bool {
	return c.Auth.JWTSecret == DefaultJWTSecret
}
