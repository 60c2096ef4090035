package vector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/openresponses/openresponses/pkg/api"
	"github.com/openresponses/openresponses/pkg/embedders"
	"github.com/openresponses/openresponses/pkg/filter"
	"github.com/openresponses/openresponses/pkg/ident"
	"github.com/openresponses/openresponses/pkg/lexical"
	"github.com/openresponses/openresponses/pkg/rag"
)

// DefaultScoreThreshold drops the weakest similarity hits. Strictly greater
// than the threshold survives.
const DefaultScoreThreshold = 0.07

// Indexer implements the file-level ingest and retrieval contract over a
// vector provider, an optional keyword index, an embedder, and a chunker.
// Writes to the same file are serialized; different files index in parallel.
type Indexer struct {
	provider  Provider
	keyword   Keyword
	embedder  embedders.EmbedderProvider
	chunker   *rag.Chunker
	threshold float64

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewIndexer wires the ingest pipeline. keyword may be nil to disable the
// lexical leg. A non-positive scoreThreshold selects the default.
func NewIndexer(provider Provider, keyword Keyword, embedder embedders.EmbedderProvider, chunker *rag.Chunker, scoreThreshold float64) *Indexer {
	if scoreThreshold <= 0 {
		scoreThreshold = DefaultScoreThreshold
	}
	return &Indexer{
		provider:  provider,
		keyword:   keyword,
		embedder:  embedder,
		chunker:   chunker,
		threshold: scoreThreshold,
		locks:     make(map[string]*sync.Mutex),
	}
}

// lockFile serializes all writes touching one file.
func (ix *Indexer) lockFile(fileID string) func() {
	ix.mu.Lock()
	m, ok := ix.locks[fileID]
	if !ok {
		m = &sync.Mutex{}
		ix.locks[fileID] = m
	}
	ix.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// IndexFile chunks, embeds, and indexes one file's content, replacing any
// previous index of the same file. attributes are user metadata stamped onto
// every chunk; reserved keys are overwritten by the pipeline. strategy
// overrides the configured chunking strategy for this ingest; nil keeps the
// default. Returns the number of chunks indexed.
//
// On a partial failure both stores are rolled back to empty for this file
// rather than left half-indexed; the caller re-ingests.
func (ix *Indexer) IndexFile(ctx context.Context, fileID, filename, vectorStoreID, content string, attributes map[string]interface{}, strategy *rag.ChunkingStrategy) (int, error) {
	if fileID == "" {
		return 0, api.InvalidArgumentf("file id is required")
	}

	// Reject a bad strategy before touching the existing index.
	chunker := ix.chunker
	if strategy != nil {
		c, err := ix.chunker.WithStrategy(*strategy)
		if err != nil {
			return 0, api.WrapError(api.KindInvalidArgument, fmt.Sprintf("chunking strategy for file %s", fileID), err)
		}
		chunker = c
	}

	unlock := ix.lockFile(fileID)
	defer unlock()

	// Replace, not append: stale chunks from a previous version of the file
	// must not survive a re-ingest.
	if _, err := ix.provider.DeleteByFile(ctx, fileID); err != nil {
		return 0, api.WrapError(api.KindStorage, fmt.Sprintf("clearing previous index of file %s", fileID), err)
	}
	if ix.keyword != nil {
		if _, err := ix.keyword.DeleteByFile(ctx, fileID); err != nil {
			return 0, api.WrapError(api.KindStorage, fmt.Sprintf("clearing previous keyword index of file %s", fileID), err)
		}
	}

	chunks, err := chunker.Chunk(content)
	if err != nil {
		return 0, api.WrapError(api.KindInvalidArgument, fmt.Sprintf("chunking file %s", fileID), err)
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := ix.embedder.EmbedBatchWithContext(ctx, texts)
	if err != nil {
		return 0, api.WrapError(api.KindUpstream, fmt.Sprintf("embedding %d chunks of file %s", len(chunks), fileID), err)
	}
	if len(vectors) != len(chunks) {
		return 0, api.NewError(api.KindUpstream, fmt.Sprintf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks)))
	}

	points := make([]Point, len(chunks))
	docs := make([]lexical.Document, len(chunks))
	for i, c := range chunks {
		chunkID := ident.ChunkID(fileID, c.Index)
		metadata := make(map[string]interface{}, len(attributes)+7)
		for k, v := range attributes {
			metadata[k] = v
		}
		metadata[api.AttrFileID] = fileID
		metadata[api.AttrFilename] = filename
		metadata[api.AttrVectorStoreID] = vectorStoreID
		metadata[api.AttrChunkID] = chunkID
		metadata[api.AttrChunkIndex] = c.Index
		metadata[api.AttrTotalChunks] = len(chunks)
		metadata["content"] = c.Text

		points[i] = Point{ID: chunkID, Vector: vectors[i], Metadata: metadata}
		docs[i] = lexical.Document{ID: chunkID, Content: c.Text, Metadata: metadata}
	}

	if err := ix.provider.Upsert(ctx, points); err != nil {
		ix.rollback(ctx, fileID)
		return 0, api.WrapError(api.KindStorage, fmt.Sprintf("indexing file %s", fileID), err)
	}
	if ix.keyword != nil {
		if err := ix.keyword.Index(ctx, docs); err != nil {
			ix.rollback(ctx, fileID)
			return 0, api.WrapError(api.KindStorage, fmt.Sprintf("keyword indexing file %s", fileID), err)
		}
	}
	return len(chunks), nil
}

// rollback clears both stores after a partial index failure. Errors here are
// swallowed: the original failure is what the caller needs to see, and a
// re-ingest starts with the same delete anyway.
func (ix *Indexer) rollback(ctx context.Context, fileID string) {
	_, _ = ix.provider.DeleteByFile(ctx, fileID)
	if ix.keyword != nil {
		_, _ = ix.keyword.DeleteByFile(ctx, fileID)
	}
}

// SearchSimilar embeds the query and returns the provider hits above the
// score threshold, most similar first. A blank query returns no results.
// Ties break deterministically on (file_id, chunk_index).
func (ix *Indexer) SearchSimilar(ctx context.Context, query string, limit int, f filter.Filter) ([]api.SearchResult, error) {
	if strings.TrimSpace(query) == "" || limit < 1 {
		return nil, nil
	}

	vector, err := ix.embedder.EmbedWithContext(ctx, query)
	if err != nil {
		return nil, api.WrapError(api.KindUpstream, "embedding query", err)
	}

	hits, err := ix.provider.Search(ctx, vector, limit, f)
	if err != nil {
		return nil, err
	}

	results := make([]api.SearchResult, 0, len(hits))
	for _, hit := range hits {
		score := float64(hit.Score)
		if score <= ix.threshold {
			continue
		}
		metadata := hit.Metadata
		if metadata == nil {
			metadata = map[string]interface{}{}
		}
		fileID, _ := metadata[api.AttrFileID].(string)
		filename, _ := metadata[api.AttrFilename].(string)
		content := hit.Content
		if content == "" {
			content, _ = metadata["content"].(string)
		}
		attrs := make(map[string]interface{}, len(metadata))
		for k, v := range metadata {
			if k == "content" {
				continue
			}
			attrs[k] = v
		}
		if id, ok := attrs[api.AttrChunkID].(string); !ok || id == "" {
			attrs[api.AttrChunkID] = hit.ID
		}
		results = append(results, api.SearchResult{
			FileID:     fileID,
			Filename:   filename,
			Score:      score,
			Content:    []api.SearchContent{{Type: "text", Text: content}},
			Attributes: attrs,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].FileID != results[j].FileID {
			return results[i].FileID < results[j].FileID
		}
		ci, _ := results[i].ChunkIndex()
		cj, _ := results[j].ChunkIndex()
		return ci < cj
	})
	return results, nil
}

// DeleteFile removes the file from both stores. The bool reports whether
// anything was removed; deleting an unknown file is a no-op.
func (ix *Indexer) DeleteFile(ctx context.Context, fileID string) (bool, error) {
	unlock := ix.lockFile(fileID)
	defer unlock()

	deleted, err := ix.provider.DeleteByFile(ctx, fileID)
	if err != nil {
		return false, api.WrapError(api.KindStorage, fmt.Sprintf("deleting file %s", fileID), err)
	}
	if ix.keyword != nil {
		n, err := ix.keyword.DeleteByFile(ctx, fileID)
		if err != nil {
			return deleted, api.WrapError(api.KindStorage, fmt.Sprintf("deleting keyword documents of file %s", fileID), err)
		}
		deleted = deleted || n > 0
	}
	return deleted, nil
}

// FileMetadata returns stored metadata for the file, or nil when unknown.
func (ix *Indexer) FileMetadata(ctx context.Context, fileID string) (map[string]interface{}, error) {
	return ix.provider.FileMetadata(ctx, fileID)
}
