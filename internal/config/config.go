// Package config loads server configuration from the environment, ensuring
// no hardcoded values exist in the connection-handling code.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds the dynamic settings for a vase server per spec.md §6.
type Config struct {
	Host string `validate:"required"`
	Port int    `validate:"gte=0,lte=65535"`

	// KeepAlive is the idle-connection timeout (spec.md §4.3). A value
	// <= 0 means every response closes the connection.
	KeepAlive time.Duration

	// MaxHeaderBytes bounds the size of a request's header block so a
	// slow-loris style client can't pin an unbounded buffer.
	MaxHeaderBytes int `validate:"gt=0"`

	// JWTSecret signs tokens minted/verified by internal/auth's default
	// Authorizer. Empty disables that helper; routes can still supply
	// their own Authorizer.
	JWTSecret string
}

var validate = validator.New()

// Load reads VASE_-prefixed environment variables, optionally seeded from
// a .env file, and applies the defaults from spec.md §6.
func Load() (*Config, error) {
	_ = godotenv.Load() // no .env file is the common case outside development

	cfg := &Config{
		Host:           getEnv("VASE_HOST", "0.0.0.0"),
		Port:           getEnvInt("VASE_PORT", 3000),
		KeepAlive:      time.Duration(getEnvInt("VASE_KEEP_ALIVE_SECONDS", 20)) * time.Second,
		MaxHeaderBytes: getEnvInt("VASE_MAX_HEADER_BYTES", 1<<20),
		JWTSecret:      os.Getenv("VASE_JWT_SECRET"),
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
