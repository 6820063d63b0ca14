package store

import (
	"fmt"

	"go.uber.org/zap"
)

// Config selects and configures a store backend.
type Config struct {
	// Provider is the backend name: "chromem" (default) or "qdrant".
	Provider string `koanf:"provider"`

	Chromem ChromemConfig `koanf:"chromem"`
	Qdrant  QdrantConfig  `koanf:"qdrant"`
}

// New creates a Store based on the configuration.
//
// The chromem provider is the default: embedded, persistent, no external
// service. The qdrant provider targets an external Qdrant server over gRPC
// for deployments that outgrow the embedded store.
func New(cfg Config, logger *zap.Logger) (Store, error) {
	switch cfg.Provider {
	case "chromem", "":
		return NewChromemStore(cfg.Chromem, logger)
	case "qdrant":
		return NewQdrantStore(cfg.Qdrant, logger)
	default:
		return nil, fmt.Errorf("%w: unsupported provider %q (supported: chromem, qdrant)",
			ErrInvalidConfig, cfg.Provider)
	}
}
