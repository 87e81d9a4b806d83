// Package config loads the bot's settings from environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// ErrMissingToken is returned by Validate when BOT_TOKEN is unset.
var ErrMissingToken = errors.New("BOT_TOKEN is not set")

// Config is the process configuration.
type Config struct {
	BotToken string `env:"BOT_TOKEN"`
	DataDir  string `env:"LEDGER_DATA_DIR" envDefault:"data"`
	LogLevel string `env:"LOG_LEVEL"       envDefault:"info"`

	// MetricsAddr is where /metrics is served; empty disables it.
	MetricsAddr string `env:"LEDGER_METRICS_ADDR" envDefault:":9090"`

	ConnectTimeout time.Duration `env:"LEDGER_CONNECT_TIMEOUT" envDefault:"15s"`
	ReadTimeout    time.Duration `env:"LEDGER_READ_TIMEOUT"    envDefault:"30s"`
	PoolTimeout    time.Duration `env:"LEDGER_POOL_TIMEOUT"    envDefault:"60s"`
	PollTimeout    time.Duration `env:"LEDGER_POLL_TIMEOUT"    envDefault:"30s"`

	DeliveryAttempts  int           `env:"LEDGER_DELIVERY_ATTEMPTS"   envDefault:"3"`
	DeliveryBaseDelay time.Duration `env:"LEDGER_DELIVERY_BASE_DELAY" envDefault:"1s"`

	AdminCacheTTL time.Duration `env:"LEDGER_ADMIN_CACHE_TTL" envDefault:"600s"`
	PageSize      int           `env:"LEDGER_PAGE_SIZE"       envDefault:"10"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.PageSize <= 0 {
		return Config{}, fmt.Errorf("LEDGER_PAGE_SIZE must be positive, got %d", cfg.PageSize)
	}
	if cfg.DeliveryAttempts <= 0 {
		return Config{}, fmt.Errorf("LEDGER_DELIVERY_ATTEMPTS must be positive, got %d", cfg.DeliveryAttempts)
	}
	return cfg, nil
}

// Validate checks the settings needed to talk to the chat API.
func (c Config) Validate() error {
	if c.BotToken == "" {
		return ErrMissingToken
	}
	return nil
}
