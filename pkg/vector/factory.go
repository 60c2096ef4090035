package vector

import (
	"fmt"

	"github.com/openresponses/openresponses/pkg/config"
)

// NewProvider creates the vector provider declared by the config.
func NewProvider(cfg *config.VectorConfig) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("vector config is required")
	}
	switch cfg.Provider {
	case config.VectorProviderChromem:
		return NewChromemProvider(cfg.Chromem)
	case config.VectorProviderQdrant:
		return NewQdrantProvider(cfg.Qdrant, cfg.Qdrant.Collection)
	case config.VectorProviderPinecone:
		return NewPineconeProvider(cfg.Pinecone)
	default:
		return nil, fmt.Errorf("unknown vector provider %q (supported: chromem, qdrant, pinecone)", cfg.Provider)
	}
}
