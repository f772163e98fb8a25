package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Worker    WorkerConfig
	Registry  RegistryConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8000"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	AllowedOrigins  []string      `envconfig:"ALLOWED_ORIGINS" default:"*"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// WorkerConfig holds per-connection worker configuration.
type WorkerConfig struct {
	AppPayload      string   `envconfig:"APP_PAYLOAD"`
	DepsManifest    string   `envconfig:"DEPS_MANIFEST"`
	Dependencies    []string `envconfig:"DEPENDENCIES"`
	InboxSize       int      `envconfig:"WORKER_INBOX_SIZE" default:"64"`
	MaxCallStack    int      `envconfig:"RUNTIME_MAX_CALL_STACK" default:"1024"`
	MaxMessageBytes int64    `envconfig:"WORKER_MAX_MESSAGE_BYTES" default:"16777216"`
}

// RegistryConfig holds dependency registry configuration.
type RegistryConfig struct {
	Dir     string        `envconfig:"REGISTRY_DIR"`
	RPS     float64       `envconfig:"REGISTRY_RPS" default:"5"`
	Retries int           `envconfig:"REGISTRY_RETRIES" default:"3"`
	Timeout time.Duration `envconfig:"REGISTRY_TIMEOUT" default:"30s"`

	HostFailures int           `envconfig:"REGISTRY_HOST_FAILURES" default:"3"`
	HostCooldown time.Duration `envconfig:"REGISTRY_HOST_COOLDOWN" default:"30s"`
	MaxBytes     int           `envconfig:"REGISTRY_MAX_BYTES" default:"33554432"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Worker: WorkerConfig{
			InboxSize:       64,
			MaxCallStack:    1024,
			MaxMessageBytes: 16 << 20,
		},
		Registry: RegistryConfig{
			RPS:          5,
			Retries:      3,
			Timeout:      30 * time.Second,
			HostFailures: 3,
			HostCooldown: 30 * time.Second,
			MaxBytes:     32 << 20,
		},
	}
}
