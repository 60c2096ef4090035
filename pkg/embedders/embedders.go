// Package embedders provides the embedding providers used for vector
// indexing and search, plus an in-process LRU cache wrapper.
package embedders

import (
	"context"
	"fmt"

	"github.com/openresponses/openresponses/pkg/config"
)

// EmbedderProvider produces embedding vectors for text.
type EmbedderProvider interface {
	Embed(text string) ([]float32, error)
	EmbedWithContext(ctx context.Context, text string) ([]float32, error)
	EmbedBatchWithContext(ctx context.Context, texts []string) ([][]float32, error)
	GetDimension() int
	GetModelName() string
	Close() error
}

// NewEmbedder creates the embedder declared by the config, wrapped with the
// LRU cache unless caching is disabled with a negative cache_size.
func NewEmbedder(cfg *config.EmbedderConfig) (EmbedderProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("embedder config is required")
	}

	var provider EmbedderProvider
	var err error

	switch cfg.Type {
	case "openai":
		provider, err = NewOpenAIEmbedder(cfg)
	case "ollama":
		provider, err = NewOllamaEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unsupported embedder type: %s", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	if cfg.CacheSize < 0 {
		return provider, nil
	}
	return NewCachedEmbedder(provider, cfg.CacheSize), nil
}
