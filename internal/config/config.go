// Package config provides configuration loading for failbankd.
//
// Configuration merges three layers, lowest precedence first: hardcoded
// defaults, a YAML config file, and FAILBANK_-prefixed environment
// variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/failbank/internal/engine"
	"github.com/fyrsmithlabs/failbank/internal/provider"
	"github.com/fyrsmithlabs/failbank/internal/store"
)

// Config holds the complete failbankd configuration.
type Config struct {
	Server      ServerConfig    `koanf:"server"`
	Logging     LoggingConfig   `koanf:"logging"`
	VectorStore store.Config    `koanf:"vectorstore"`
	Provider    provider.Config `koanf:"provider"`
	Engine      engine.Config   `koanf:"engine"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	// Level is the minimum level: debug, info, warn, error. Default: info.
	Level string `koanf:"level"`

	// Format is the encoder: "json" or "console". Default: json.
	Format string `koanf:"format"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	cfg.VectorStore.Chromem.ApplyDefaults()
	cfg.VectorStore.Qdrant.ApplyDefaults()
	cfg.Provider.ApplyDefaults()
	cfg.Engine.ApplyDefaults()
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %q", c.Logging.Format)
	}

	switch c.VectorStore.Provider {
	case "", "chromem":
		if err := c.VectorStore.Chromem.Validate(); err != nil {
			return err
		}
	case "qdrant":
		if err := c.VectorStore.Qdrant.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid vectorstore provider: %q (supported: chromem, qdrant)",
			c.VectorStore.Provider)
	}

	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	return nil
}
