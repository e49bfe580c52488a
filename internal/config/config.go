// Package config provides configuration management for the Foreman backend.
//
// Configuration is loaded from:
// 1. config.yaml file (optional)
// 2. Environment variables (standard names like MONGO_URI, SERVER_PORT)
// 3. Default values
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config is the root configuration structure.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Mongo       MongoConfig       `mapstructure:"mongo"`
	Log         LogConfig         `mapstructure:"log"`
	Push        PushConfig        `mapstructure:"push"`
	Resolver    ResolverConfig    `mapstructure:"resolver"`
	Retry       RetryConfig       `mapstructure:"retry"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Activity    ActivityConfig    `mapstructure:"activity"`
	Security    SecurityConfig    `mapstructure:"security"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Worker      WorkerConfig      `mapstructure:"worker"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// MongoConfig contains document store connection settings.
type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// PushConfig contains push gateway settings.
type PushConfig struct {
	GatewayURL      string        `mapstructure:"gateway_url"`
	AccessToken     string        `mapstructure:"access_token"`
	BatchSize       int           `mapstructure:"batch_size"`
	BatchDelay      time.Duration `mapstructure:"batch_delay"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	DefaultSound    string        `mapstructure:"default_sound"`
	DefaultPriority string        `mapstructure:"default_priority"`
	DefaultTTL      int           `mapstructure:"default_ttl"`
}

// ResolverConfig contains recipient resolution settings.
type ResolverConfig struct {
	PrimaryTimeout   time.Duration `mapstructure:"primary_timeout"`
	FallbackTimeout  time.Duration `mapstructure:"fallback_timeout"`
	PrimaryCacheTTL  time.Duration `mapstructure:"primary_cache_ttl"`
	FallbackCacheTTL time.Duration `mapstructure:"fallback_cache_ttl"`
}

// RetryConfig contains retry queue and circuit breaker settings.
type RetryConfig struct {
	MaxAttempts      int           `mapstructure:"max_attempts"`
	BaseDelay        time.Duration `mapstructure:"base_delay"`
	MaxDelay         time.Duration `mapstructure:"max_delay"`
	Jitter           string        `mapstructure:"jitter"` // none, full, equal, decorrelated
	BreakerThreshold uint32        `mapstructure:"breaker_threshold"`
	BreakerReset     time.Duration `mapstructure:"breaker_reset"`
	QueueInterval    time.Duration `mapstructure:"queue_interval"`
}

// MaintenanceConfig contains token maintenance settings.
type MaintenanceConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	TokenMaxAge    time.Duration `mapstructure:"token_max_age"`
	DeleteInactive time.Duration `mapstructure:"delete_inactive"`
	HistorySize    int           `mapstructure:"history_size"`
}

// ActivityConfig contains the fire-and-forget activity log sink settings.
type ActivityConfig struct {
	SinkURL        string        `mapstructure:"sink_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// SecurityConfig contains security-related settings.
// Missing secrets are auto-generated on first boot.
type SecurityConfig struct {
	JWTSigningKey string `mapstructure:"jwt_signing_key"`
	CronSecret    string `mapstructure:"cron_secret"`
}

// RateLimitConfig contains per-IP rate limiting for token registration.
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	GeneralPoolSize  int `mapstructure:"general_pool_size"`
	DeliveryPoolSize int `mapstructure:"delivery_pool_size"`
}

var (
	bootstrapLoggerOnce sync.Once
	bootstrapLogger     *zap.Logger
)

// Load reads configuration from file and environment variables.
// Standard environment variables without prefix (MONGO_URI, SERVER_PORT, etc.).
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/foreman")

	// Environment variable override.
	// Maps nested config keys, e.g. push.batch_size becomes PUSH_BATCH_SIZE.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file is optional, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.ensureSecrets(); err != nil {
		return nil, fmt.Errorf("ensure secrets: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks for critical configuration errors.
func (c *Config) Validate() error {
	if c.Security.JWTSigningKey == "" {
		return fmt.Errorf("security.jwt_signing_key must not be empty")
	}
	if len(c.Security.JWTSigningKey) < 32 {
		return fmt.Errorf("security.jwt_signing_key must be at least 32 characters")
	}
	if c.Push.BatchSize <= 0 || c.Push.BatchSize > 100 {
		return fmt.Errorf("push.batch_size must be in 1..100 (provider hard cap), got %d", c.Push.BatchSize)
	}
	switch c.Retry.Jitter {
	case "none", "full", "equal", "decorrelated":
	default:
		return fmt.Errorf("retry.jitter must be one of none|full|equal|decorrelated, got %q", c.Retry.Jitter)
	}
	return nil
}

// ensureSecrets auto-generates missing secrets on first boot.
func (c *Config) ensureSecrets() error {
	if c.Security.JWTSigningKey == "" {
		secret, err := generateSecureRandomHex(32)
		if err != nil {
			return fmt.Errorf("auto-generate jwt signing key: %w", err)
		}
		c.Security.JWTSigningKey = secret
		logBootstrapWarn(
			"auto-generated jwt_signing_key; set SECURITY_JWT_SIGNING_KEY env var for persistence",
			zap.Int("length", len(secret)),
		)
	}
	if c.Security.CronSecret == "" {
		secret, err := generateSecureRandomHex(32)
		if err != nil {
			return fmt.Errorf("auto-generate cron secret: %w", err)
		}
		c.Security.CronSecret = secret
		logBootstrapWarn(
			"auto-generated cron_secret; set SECURITY_CRON_SECRET env var for persistence",
			zap.Int("length", len(secret)),
		)
	}
	return nil
}

func logBootstrapWarn(msg string, fields ...zap.Field) {
	bootstrapLoggerOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)

		l, err := cfg.Build()
		if err != nil {
			bootstrapLogger = zap.NewNop()
			return
		}
		bootstrapLogger = l
	})

	bootstrapLogger.Warn(msg, fields...)
}

// generateSecureRandomHex produces a hex-encoded string of n random bytes.
func generateSecureRandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.cors_origins", []string{"*"})

	// Mongo
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "foreman")
	v.SetDefault("mongo.connect_timeout", "10s")

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Push gateway
	v.SetDefault("push.gateway_url", "https://exp.host/--/api/v2/push/send")
	v.SetDefault("push.batch_size", 100)
	v.SetDefault("push.batch_delay", "250ms")
	v.SetDefault("push.request_timeout", "15s")
	v.SetDefault("push.default_sound", "default")
	v.SetDefault("push.default_priority", "high")
	v.SetDefault("push.default_ttl", 3600)

	// Resolver
	v.SetDefault("resolver.primary_timeout", "5s")
	v.SetDefault("resolver.fallback_timeout", "3s")
	v.SetDefault("resolver.primary_cache_ttl", "5m")
	v.SetDefault("resolver.fallback_cache_ttl", "2m")

	// Retry
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", "2s")
	v.SetDefault("retry.max_delay", "5m")
	v.SetDefault("retry.jitter", "equal")
	v.SetDefault("retry.breaker_threshold", 5)
	v.SetDefault("retry.breaker_reset", "1m")
	v.SetDefault("retry.queue_interval", "30s")

	// Maintenance
	v.SetDefault("maintenance.interval", "6h")
	v.SetDefault("maintenance.token_max_age", "720h")    // deactivate after 30 days unused
	v.SetDefault("maintenance.delete_inactive", "2160h") // hard delete after 90 days inactive
	v.SetDefault("maintenance.history_size", 20)

	// Activity sink
	v.SetDefault("activity.sink_url", "")
	v.SetDefault("activity.request_timeout", "5s")

	// Rate limit (token registration)
	v.SetDefault("rate_limit.requests_per_minute", 30)
	v.SetDefault("rate_limit.burst", 10)

	// Worker pools
	v.SetDefault("worker.general_pool_size", 100)
	v.SetDefault("worker.delivery_pool_size", 20)
}
