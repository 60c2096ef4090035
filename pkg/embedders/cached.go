package embedders

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultEmbeddingCacheSize bounds the cache when no size is configured.
const DefaultEmbeddingCacheSize = 2048

// CachedEmbedder wraps a provider with an LRU cache so repeated queries and
// re-indexed chunks skip the upstream round trip.
type CachedEmbedder struct {
	inner EmbedderProvider
	cache *lru.Cache[string, []float32]
}

func NewCachedEmbedder(inner EmbedderProvider, cacheSize int) *CachedEmbedder {
	if cacheSize <= 0 {
		cacheSize = DefaultEmbeddingCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &CachedEmbedder{
		inner: inner,
		cache: cache,
	}
}

// cacheKey hashes text together with the model name so a model switch never
// serves stale vectors.
func (c *CachedEmbedder) cacheKey(text string) string {
	hash := sha256.Sum256([]byte(text + "\x00" + c.inner.GetModelName()))
	return hex.EncodeToString(hash[:])
}

func (c *CachedEmbedder) Embed(text string) ([]float32, error) {
	return c.EmbedWithContext(context.Background(), text)
}

func (c *CachedEmbedder) EmbedWithContext(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}

	vec, err := c.inner.EmbedWithContext(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.Add(key, vec)
	return vec, nil
}

// EmbedBatchWithContext serves cache hits first and batches only the misses
// through the inner provider.
func (c *CachedEmbedder) EmbedBatchWithContext(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	uncachedIndices := make([]int, 0, len(texts))
	uncachedTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		if vec, ok := c.cache.Get(c.cacheKey(text)); ok {
			results[i] = vec
		} else {
			uncachedIndices = append(uncachedIndices, i)
			uncachedTexts = append(uncachedTexts, text)
		}
	}

	if len(uncachedTexts) == 0 {
		return results, nil
	}

	embeddings, err := c.inner.EmbedBatchWithContext(ctx, uncachedTexts)
	if err != nil {
		return nil, err
	}

	for j, idx := range uncachedIndices {
		results[idx] = embeddings[j]
		c.cache.Add(c.cacheKey(texts[idx]), embeddings[j])
	}

	return results, nil
}

func (c *CachedEmbedder) GetDimension() int {
	return c.inner.GetDimension()
}

func (c *CachedEmbedder) GetModelName() string {
	return c.inner.GetModelName()
}

func (c *CachedEmbedder) Close() error {
	return c.inner.Close()
}
