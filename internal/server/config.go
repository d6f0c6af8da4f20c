// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the chat hub.
package server

import (
	"fmt"
	"strings"
	"sync"
	"time"

	env "github.com/Netflix/go-env"
)

// RateLimitConfig defines the per-connection limit on chat and typing events.
type RateLimitConfig struct {
	Burst          int           `validate:"gt=0"`
	RefillInterval time.Duration `validate:"gt=0"`
}

// Config holds the server settings.
type Config struct {
	Env             string   `validate:"required"`
	LogLevel        string   `validate:"oneof=debug info warn error"`
	Port            string   `validate:"required"`
	AllowedOrigins  []string `validate:"dive,required"`
	MaxMessageSize  int64    `validate:"gt=0"`
	RateLimit       RateLimitConfig
	ShutdownTimeout time.Duration `validate:"gt=0"`
}

// environment mirrors Config as flat variables.
type environment struct {
	Env             string        `env:"APP_ENV,default=dev"`
	LogLevel        string        `env:"LOG_LEVEL,default=info"`
	Port            string        `env:"SERVER_PORT,default=:8080"`
	AllowedOrigins  string        `env:"ALLOWED_ORIGINS,default=*"`
	MaxMessageSize  int64         `env:"MAX_MESSAGE_SIZE,default=1048576"`
	RateLimitBurst  int           `env:"RATE_LIMIT_BURST,default=20"`
	RateLimitRefill time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL,default=1s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

var (
	configMu        sync.RWMutex
	activeConfig    Config
	allowedOrigins  map[string]struct{}
	allowAllOrigins bool
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Env:            "dev",
		LogLevel:       "info",
		Port:           ":8080",
		AllowedOrigins: []string{"*"},
		MaxMessageSize: 1 << 20,
		RateLimit: RateLimitConfig{
			Burst:          20,
			RefillInterval: time.Second,
		},
		ShutdownTimeout: 10 * time.Second,
	}
}

// sanitizeConfig fills zero values from the defaults and installs cfg as the
// active configuration.
func sanitizeConfig(cfg Config) Config {
	def := defaultConfig()
	if cfg.Env == "" {
		cfg.Env = def.Env
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	if cfg.Port == "" {
		cfg.Port = def.Port
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = def.RateLimit.Burst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	normalizedOrigins, allowAll := normalizeOrigins(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalizedOrigins

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	allowAllOrigins = allowAll
	allowedOrigins = make(map[string]struct{}, len(normalizedOrigins))
	for _, origin := range normalizedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	return cfg
}

// SetConfig applies the provided configuration. Passing nil resets to defaults.
func SetConfig(cfg *Config) {
	if cfg == nil {
		sanitizeConfig(defaultConfig())
		return
	}

	copied := *cfg
	copied.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	sanitizeConfig(copied)
}

func currentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// CurrentConfig returns a copy of the active configuration.
func CurrentConfig() Config { return currentConfig() }

// NewConfig creates a Config populated with default values.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv reads the process environment, falling back to defaults
// for unset variables, and validates the result.
func NewConfigFromEnv() (*Config, error) {
	var e environment
	if _, err := env.UnmarshalFromEnviron(&e); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	cfg := &Config{
		Env:            e.Env,
		LogLevel:       strings.ToLower(e.LogLevel),
		Port:           e.Port,
		AllowedOrigins: parseOrigins(e.AllowedOrigins),
		MaxMessageSize: e.MaxMessageSize,
		RateLimit: RateLimitConfig{
			Burst:          e.RateLimitBurst,
			RefillInterval: e.RateLimitRefill,
		},
		ShutdownTimeout: e.ShutdownTimeout,
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func parseOrigins(origins string) []string {
	var out []string
	for _, part := range strings.Split(origins, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
