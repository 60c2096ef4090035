// Package rag provides the ingestion-side text processing for vector
// stores: token-aware chunking with overlap.
package rag

import (
	"fmt"

	"github.com/openresponses/openresponses/pkg/utils"
)

// ChunkingStrategy configures token-aware chunking.
//
// Chunk size is a retrieval-quality tradeoff: too small loses context, too
// large dilutes relevance and wastes tokens. Overlap preserves context at
// chunk boundaries.
type ChunkingStrategy struct {
	// MaxChunkSizeTokens is the chunk window in tokens. Default: 1000.
	MaxChunkSizeTokens int `json:"max_chunk_size_tokens,omitempty" yaml:"max_chunk_size_tokens,omitempty"`

	// ChunkOverlapTokens is carried over between consecutive chunks.
	// Default: 200. Must stay below MaxChunkSizeTokens.
	ChunkOverlapTokens int `json:"chunk_overlap_tokens,omitempty" yaml:"chunk_overlap_tokens,omitempty"`
}

// DefaultChunkingStrategy returns the stock 1000/200 strategy.
func DefaultChunkingStrategy() ChunkingStrategy {
	return ChunkingStrategy{
		MaxChunkSizeTokens: 1000,
		ChunkOverlapTokens: 200,
	}
}

// SetDefaults applies default values.
func (s *ChunkingStrategy) SetDefaults() {
	if s.MaxChunkSizeTokens <= 0 {
		s.MaxChunkSizeTokens = 1000
	}
	if s.ChunkOverlapTokens < 0 {
		s.ChunkOverlapTokens = 200
	}
}

// Validate checks the strategy for errors.
func (s *ChunkingStrategy) Validate() error {
	if s.MaxChunkSizeTokens <= 0 {
		return fmt.Errorf("max_chunk_size_tokens must be positive, got %d", s.MaxChunkSizeTokens)
	}
	if s.ChunkOverlapTokens < 0 {
		return fmt.Errorf("chunk_overlap_tokens must be non-negative, got %d", s.ChunkOverlapTokens)
	}
	if s.ChunkOverlapTokens >= s.MaxChunkSizeTokens {
		return fmt.Errorf("chunk_overlap_tokens (%d) must be less than max_chunk_size_tokens (%d)",
			s.ChunkOverlapTokens, s.MaxChunkSizeTokens)
	}
	return nil
}

// Chunk is one bounded piece of a source text. Index is 0-based; the total
// count is the length of the returned slice, which consumers stamp onto
// chunk metadata as total_chunks.
type Chunk struct {
	Text  string
	Index int
}

// Chunker splits text into token windows with overlap.
type Chunker struct {
	counter  *utils.TokenCounter
	strategy ChunkingStrategy
}

// NewChunker creates a chunker for the given strategy. The model name picks
// the tokenizer encoding; empty falls back to cl100k_base.
func NewChunker(strategy ChunkingStrategy, model string) (*Chunker, error) {
	strategy.SetDefaults()
	if err := strategy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chunking strategy: %w", err)
	}
	counter, err := utils.NewTokenCounter(model)
	if err != nil {
		return nil, fmt.Errorf("creating token counter: %w", err)
	}
	return &Chunker{counter: counter, strategy: strategy}, nil
}

// Strategy returns the effective strategy after defaulting.
func (c *Chunker) Strategy() ChunkingStrategy {
	return c.strategy
}

// WithStrategy returns a chunker sharing this chunker's tokenizer but using
// the given strategy.
func (c *Chunker) WithStrategy(strategy ChunkingStrategy) (*Chunker, error) {
	strategy.SetDefaults()
	if err := strategy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chunking strategy: %w", err)
	}
	return &Chunker{counter: c.counter, strategy: strategy}, nil
}

// Chunk splits content into ordered token windows. Empty content yields an
// empty slice; the last chunk may be shorter than the window.
func (c *Chunker) Chunk(content string) ([]Chunk, error) {
	if content == "" {
		return nil, nil
	}

	tokens := c.counter.Encode(content)
	if len(tokens) == 0 {
		return nil, nil
	}

	size := c.strategy.MaxChunkSizeTokens
	step := size - c.strategy.ChunkOverlapTokens

	chunks := make([]Chunk, 0, (len(tokens)+step-1)/step)
	for start := 0; start < len(tokens); start += step {
		end := start + size
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, Chunk{
			Text:  c.counter.Decode(tokens[start:end]),
			Index: len(chunks),
		})
		if end == len(tokens) {
			break
		}
	}
	return chunks, nil
}
