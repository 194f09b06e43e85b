// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the chat service.
package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// RateLimitConfig defines the parameters for per-connection event rate limiting.
type RateLimitConfig struct {
	Burst          int           `envconfig:"RATE_LIMIT_BURST" validate:"gt=0"`
	RefillInterval time.Duration `envconfig:"RATE_LIMIT_REFILL_INTERVAL" validate:"gt=0"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port           string   `envconfig:"SERVER_PORT" validate:"required"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`
	MaxMessageSize int64    `envconfig:"MAX_MESSAGE_SIZE" validate:"gt=0"`
	SendBufferSize int      `envconfig:"SEND_BUFFER_SIZE" validate:"gt=0"`
	// Embedded so that its variables are read without a prefix.
	RateLimitConfig

	UploadDir     string `envconfig:"UPLOAD_DIR" validate:"required"`
	MaxUploadSize int64  `envconfig:"MAX_UPLOAD_SIZE" validate:"gt=0"`

	LogLevel  string `envconfig:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat string `envconfig:"LOG_FORMAT" validate:"oneof=text json"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// NewConfig creates a Config instance populated with default values for all
// settings. LoadConfig starts from these values.
func NewConfig() *Config {
	return &Config{
		Port:           ":8080",
		AllowedOrigins: []string{"*"},
		MaxMessageSize: 64 * 1024,
		SendBufferSize: 256,
		RateLimitConfig: RateLimitConfig{
			Burst:          20,
			RefillInterval: time.Second,
		},
		UploadDir:       "uploads",
		MaxUploadSize:   10 * 1024 * 1024,
		LogLevel:        "info",
		LogFormat:       "text",
		ShutdownTimeout: 10 * time.Second,
	}
}

// LoadConfig overlays the environment on NewConfig and validates the
// result. Unset variables keep their defaults.
func LoadConfig() (*Config, error) {
	cfg := NewConfig()
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.AllowedOrigins = trimOrigins(cfg.AllowedOrigins)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func trimOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
