// Package config provides dashboard configuration.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all dashboard configuration.
type Config struct {
	Environment       string        `env:"PIPELINE_ENV" envDefault:"development"`
	BaseURL           string        `env:"PIPELINE_BASE_URL" envDefault:"http://127.0.0.1:5000"`
	PollInterval      time.Duration `env:"POLL_INTERVAL" envDefault:"5s"`
	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	SubmitTimeout     time.Duration `env:"SUBMIT_TIMEOUT" envDefault:"15s"`
	ChatTimeout       time.Duration `env:"CHAT_TIMEOUT" envDefault:"60s"`
	NoticeDuration    time.Duration `env:"NOTICE_DURATION" envDefault:"5s"`
	PushEnabled       bool          `env:"PUSH_ENABLED" envDefault:"true"`
	PushReconnect     bool          `env:"PUSH_RECONNECT" envDefault:"true"`
	PushBackoffMin    time.Duration `env:"PUSH_BACKOFF_MIN" envDefault:"1s"`
	PushBackoffMax    time.Duration `env:"PUSH_BACKOFF_MAX" envDefault:"10s"`
	RequestsPerSecond float64       `env:"REQUESTS_PER_SECOND" envDefault:"20"`
	RequestBurst      int           `env:"REQUEST_BURST" envDefault:"10"`
	LogFile           string        `env:"LOG_FILE" envDefault:"pipeline-tui.log"`
	MetricsAddr       string        `env:"METRICS_ADDR"`
	AltScreen         bool          `env:"TUI_ALT_SCREEN" envDefault:"true"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("PIPELINE_BASE_URL must be an absolute URL, got %q", c.BaseURL)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be > 0")
	}
	if c.RequestTimeout <= 0 || c.SubmitTimeout <= 0 || c.ChatTimeout <= 0 {
		return fmt.Errorf("request timeouts must be > 0")
	}
	if c.NoticeDuration <= 0 {
		return fmt.Errorf("NOTICE_DURATION must be > 0")
	}
	if c.PushBackoffMin <= 0 || c.PushBackoffMax < c.PushBackoffMin {
		return fmt.Errorf("PUSH_BACKOFF_MIN must be > 0 and <= PUSH_BACKOFF_MAX")
	}
	if c.RequestBurst < 1 {
		return fmt.Errorf("REQUEST_BURST must be >= 1")
	}
	return nil
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
