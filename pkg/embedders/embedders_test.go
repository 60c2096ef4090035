package embedders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openresponses/openresponses/pkg/config"
)

// fakeEmbedder counts calls so cache behavior is observable.
type fakeEmbedder struct {
	model      string
	embedCalls int
	batchCalls int
}

func (f *fakeEmbedder) Embed(text string) ([]float32, error) {
	return f.EmbedWithContext(context.Background(), text)
}

func (f *fakeEmbedder) EmbedWithContext(_ context.Context, text string) ([]float32, error) {
	f.embedCalls++
	return []float32{float32(len(text))}, nil
}

func (f *fakeEmbedder) EmbedBatchWithContext(_ context.Context, texts []string) ([][]float32, error) {
	f.batchCalls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func (f *fakeEmbedder) GetDimension() int    { return 1 }
func (f *fakeEmbedder) GetModelName() string { return f.model }
func (f *fakeEmbedder) Close() error         { return nil }

func TestOpenAIEmbedder_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", auth)
		}

		var req openAIEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Model != "text-embedding-3-small" {
			t.Errorf("unexpected model: %s", req.Model)
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"embedding": []float32{0.1, 0.2, 0.3}, "index": 0},
			},
		})
	}))
	defer server.Close()

	embedder, err := NewOpenAIEmbedder(&config.EmbedderConfig{
		Model:     "text-embedding-3-small",
		APIKey:    "test-key",
		BaseURL:   server.URL,
		Dimension: 3,
	})
	if err != nil {
		t.Fatalf("failed to create embedder: %v", err)
	}

	vec, err := embedder.EmbedWithContext(context.Background(), "hello")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Errorf("unexpected embedding: %v", vec)
	}
	if embedder.GetDimension() != 3 {
		t.Errorf("expected dimension 3, got %d", embedder.GetDimension())
	}
}

func TestOpenAIEmbedder_EmbedBatch_OrderRestored(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Return embeddings out of order; the index must win.
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"embedding": []float32{2}, "index": 1},
				{"embedding": []float32{1}, "index": 0},
			},
		})
	}))
	defer server.Close()

	embedder, err := NewOpenAIEmbedder(&config.EmbedderConfig{
		Model:   "text-embedding-3-small",
		APIKey:  "test-key",
		BaseURL: server.URL,
	})
	if err != nil {
		t.Fatalf("failed to create embedder: %v", err)
	}

	vecs, err := embedder.EmbedBatchWithContext(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("batch embed failed: %v", err)
	}
	if len(vecs) != 2 || vecs[0][0] != 1 || vecs[1][0] != 2 {
		t.Errorf("expected input order restored, got %v", vecs)
	}
}

func TestOpenAIEmbedder_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{
				"message": "Incorrect API key provided",
				"type":    "invalid_request_error",
				"code":    "invalid_api_key",
			},
		})
	}))
	defer server.Close()

	embedder, err := NewOpenAIEmbedder(&config.EmbedderConfig{
		Model:   "text-embedding-3-small",
		APIKey:  "bad-key",
		BaseURL: server.URL,
	})
	if err != nil {
		t.Fatalf("failed to create embedder: %v", err)
	}

	_, err = embedder.EmbedWithContext(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error for unauthorized response")
	}
	if !strings.Contains(err.Error(), "Incorrect API key") {
		t.Errorf("expected upstream message in error, got: %v", err)
	}
}

func TestOpenAIEmbedder_RequiresAPIKey(t *testing.T) {
	if _, err := NewOpenAIEmbedder(&config.EmbedderConfig{Model: "text-embedding-3-small"}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestOllamaEmbedder_Embed(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Model != "nomic-embed-text" {
			t.Errorf("unexpected model: %s", req.Model)
		}

		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{0.5, 0.6}})
	}))
	defer server.Close()

	embedder, err := NewOllamaEmbedder(&config.EmbedderConfig{
		Model:     "nomic-embed-text",
		BaseURL:   server.URL,
		Dimension: 2,
	})
	if err != nil {
		t.Fatalf("failed to create embedder: %v", err)
	}

	vec, err := embedder.EmbedWithContext(context.Background(), "hello")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.5 {
		t.Errorf("unexpected embedding: %v", vec)
	}

	if _, err := embedder.EmbedBatchWithContext(context.Background(), []string{"a", "b"}); err != nil {
		t.Fatalf("batch embed failed: %v", err)
	}
	if requests != 3 {
		t.Errorf("expected 3 requests (1 single + 2 batch), got %d", requests)
	}
}

func TestOllamaEmbedder_EmptyEmbedding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaEmbedResponse{})
	}))
	defer server.Close()

	embedder, err := NewOllamaEmbedder(&config.EmbedderConfig{
		Model:   "nomic-embed-text",
		BaseURL: server.URL,
	})
	if err != nil {
		t.Fatalf("failed to create embedder: %v", err)
	}

	if _, err := embedder.EmbedWithContext(context.Background(), "hello"); err == nil {
		t.Fatal("expected error for empty embedding")
	}
}

func TestCachedEmbedder_Embed(t *testing.T) {
	inner := &fakeEmbedder{model: "test-model"}
	cached := NewCachedEmbedder(inner, 10)

	for i := 0; i < 3; i++ {
		vec, err := cached.EmbedWithContext(context.Background(), "same text")
		if err != nil {
			t.Fatalf("embed failed: %v", err)
		}
		if len(vec) != 1 {
			t.Errorf("unexpected embedding: %v", vec)
		}
	}

	if inner.embedCalls != 1 {
		t.Errorf("expected 1 inner call for repeated text, got %d", inner.embedCalls)
	}
}

func TestCachedEmbedder_EmbedBatch_PartialHits(t *testing.T) {
	inner := &fakeEmbedder{model: "test-model"}
	cached := NewCachedEmbedder(inner, 10)

	if _, err := cached.EmbedWithContext(context.Background(), "warm"); err != nil {
		t.Fatalf("embed failed: %v", err)
	}

	vecs, err := cached.EmbedBatchWithContext(context.Background(), []string{"warm", "cold"})
	if err != nil {
		t.Fatalf("batch embed failed: %v", err)
	}
	if len(vecs) != 2 || vecs[0][0] != 4 || vecs[1][0] != 4 {
		t.Errorf("unexpected batch result: %v", vecs)
	}
	if inner.batchCalls != 1 {
		t.Errorf("expected 1 batch call for the cold text, got %d", inner.batchCalls)
	}

	// Everything cached now.
	if _, err := cached.EmbedBatchWithContext(context.Background(), []string{"warm", "cold"}); err != nil {
		t.Fatalf("batch embed failed: %v", err)
	}
	if inner.batchCalls != 1 {
		t.Errorf("expected no further inner calls, got %d", inner.batchCalls)
	}
}

func TestNewEmbedder(t *testing.T) {
	cfg := &config.EmbedderConfig{Type: "ollama", Model: "nomic-embed-text", CacheSize: 100}
	embedder, err := NewEmbedder(cfg)
	if err != nil {
		t.Fatalf("failed to create embedder: %v", err)
	}
	if _, ok := embedder.(*CachedEmbedder); !ok {
		t.Errorf("expected cached wrapper, got %T", embedder)
	}

	cfg = &config.EmbedderConfig{Type: "ollama", Model: "nomic-embed-text", CacheSize: -1}
	embedder, err = NewEmbedder(cfg)
	if err != nil {
		t.Fatalf("failed to create embedder: %v", err)
	}
	if _, ok := embedder.(*OllamaEmbedder); !ok {
		t.Errorf("expected bare provider with caching disabled, got %T", embedder)
	}

	if _, err := NewEmbedder(&config.EmbedderConfig{Type: "cohere"}); err == nil {
		t.Error("expected error for unsupported type")
	}

	if _, err := NewEmbedder(nil); err == nil {
		t.Error("expected error for nil config")
	}
}
