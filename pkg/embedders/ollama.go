package embedders

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openresponses/openresponses/pkg/config"
	"github.com/openresponses/openresponses/pkg/ollama"
)

// Ollama's llama runner crashes when it receives concurrent embedding
// requests, so all embedding calls are serialized process-wide.
var ollamaEmbedMu sync.Mutex

// OllamaEmbedder implements EmbedderProvider against a local Ollama server.
type OllamaEmbedder struct {
	client    *ollama.Client
	model     string
	dimension int
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func NewOllamaEmbedder(cfg *config.EmbedderConfig) (*OllamaEmbedder, error) {
	timeout := 60 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	return &OllamaEmbedder{
		client:    ollama.NewClientWithTimeout(cfg.BaseURL, timeout),
		model:     cfg.Model,
		dimension: cfg.Dimension,
	}, nil
}

func (e *OllamaEmbedder) Embed(text string) ([]float32, error) {
	return e.EmbedWithContext(context.Background(), text)
}

func (e *OllamaEmbedder) EmbedWithContext(ctx context.Context, text string) ([]float32, error) {
	ollamaEmbedMu.Lock()
	defer ollamaEmbedMu.Unlock()

	slog.Debug("Ollama embedding request", "model", e.model, "text_length", len(text))

	var response ollamaEmbedResponse
	err := e.client.PostJSON(ctx, "/api/embeddings", ollamaEmbedRequest{
		Model:  e.model,
		Prompt: text,
	}, &response)
	if err != nil {
		slog.Error("Ollama embedding failed", "error", err, "model", e.model)
		return nil, err
	}

	if len(response.Embedding) == 0 {
		return nil, fmt.Errorf("received empty embedding from Ollama")
	}
	return response.Embedding, nil
}

// EmbedBatchWithContext embeds texts one at a time; the embeddings API has
// no batch endpoint and requests are serialized anyway.
func (e *OllamaEmbedder) EmbedBatchWithContext(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.EmbedWithContext(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d of %d: %w", i+1, len(texts), err)
		}
		results[i] = vec
	}
	return results, nil
}

func (e *OllamaEmbedder) GetDimension() int {
	return e.dimension
}

func (e *OllamaEmbedder) GetModelName() string {
	return e.model
}

func (e *OllamaEmbedder) Close() error {
	return nil
}
