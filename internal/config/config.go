// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	LogLevel string
	// HTTPTimeout bounds Fever and Inoreader calls. Miniflux requests use
	// the client library's fixed timeout instead.
	HTTPTimeout time.Duration
	DatabaseURL string
	TokenTTL    time.Duration

	// BaseURL is where the OAuth redirect handler is reachable.
	BaseURL string

	Miniflux  MinifluxConfig
	Fever     FeverConfig
	Inoreader InoreaderConfig
}

// MinifluxConfig describes an operator-provided Miniflux server.
type MinifluxConfig struct {
	Endpoint string
	Username string
	Password string
	APIKey   string
}

// Enabled reports whether a Miniflux server is configured.
func (c MinifluxConfig) Enabled() bool { return c.Endpoint != "" }

// FeverConfig describes an operator-provided Fever endpoint.
type FeverConfig struct {
	Endpoint string
	Username string
	Password string
}

// Enabled reports whether a Fever endpoint is configured.
func (c FeverConfig) Enabled() bool { return c.Endpoint != "" }

// InoreaderConfig holds the registered Inoreader application.
type InoreaderConfig struct {
	AppID  string
	AppKey string
}

// Enabled reports whether Inoreader logins are possible.
func (c InoreaderConfig) Enabled() bool { return c.AppID != "" && c.AppKey != "" }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	timeout, err := durationEnv("HTTP_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	ttl, err := durationEnv("TOKEN_TTL", 14*24*time.Hour)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
		HTTPTimeout: timeout,
		DatabaseURL: envOrDefault("DATABASE_URL", "./data/feedgrid.db"),
		TokenTTL:    ttl,
		BaseURL:     strings.TrimRight(os.Getenv("BASE_URL"), "/"),
		Miniflux: MinifluxConfig{
			Endpoint: os.Getenv("MINIFLUX_ENDPOINT"),
			Username: os.Getenv("MINIFLUX_USERNAME"),
			Password: os.Getenv("MINIFLUX_PASSWORD"),
			APIKey:   os.Getenv("MINIFLUX_API_KEY"),
		},
		Fever: FeverConfig{
			Endpoint: os.Getenv("FEVER_ENDPOINT"),
			Username: os.Getenv("FEVER_USERNAME"),
			Password: os.Getenv("FEVER_PASSWORD"),
		},
		Inoreader: InoreaderConfig{
			AppID:  os.Getenv("INOREADER_APP_ID"),
			AppKey: os.Getenv("INOREADER_APP_KEY"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL %q", c.LogLevel)
	}
	if c.Miniflux.Enabled() && c.Miniflux.APIKey == "" &&
		(c.Miniflux.Username == "" || c.Miniflux.Password == "") {
		return fmt.Errorf("MINIFLUX_ENDPOINT requires MINIFLUX_API_KEY or MINIFLUX_USERNAME and MINIFLUX_PASSWORD")
	}
	if c.Fever.Enabled() && (c.Fever.Username == "" || c.Fever.Password == "") {
		return fmt.Errorf("FEVER_ENDPOINT requires FEVER_USERNAME and FEVER_PASSWORD")
	}
	if (c.Inoreader.AppID == "") != (c.Inoreader.AppKey == "") {
		return fmt.Errorf("INOREADER_APP_ID and INOREADER_APP_KEY must be set together")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, raw)
	}
	return d, nil
}
