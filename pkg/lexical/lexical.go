// Package lexical provides the BM25 keyword index that backs the sparse
// half of hybrid search. It indexes the same chunk corpus as the vector
// providers, honors the same attribute-filter contract, and returns the
// same result shape with raw BM25 scores.
package lexical

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/openresponses/openresponses/pkg/api"
	"github.com/openresponses/openresponses/pkg/filter"
)

// Document is one chunk as the keyword index stores it. Metadata carries
// the same keys the vector payload does (file_id, filename, chunk_id,
// chunk_index, vector_store_id, total_chunks, plus user attributes).
type Document struct {
	ID       string
	Content  string
	Metadata map[string]interface{}
}

// Index wraps a bleve index over the chunk corpus.
type Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// Open opens or creates the index. An empty path keeps the index in
// memory, which tests rely on.
func Open(path string) (*Index, error) {
	mapping, err := indexMapping()
	if err != nil {
		return nil, err
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(mapping)
	} else {
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, mapping)
		} else if err != nil {
			// A half-written index directory cannot be recovered; rebuild
			// it and let re-ingest repopulate.
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("keyword index at %s unusable and cannot be cleared: %v (open error: %w)", path, removeErr, err)
			}
			idx, err = bleve.New(path, mapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("opening keyword index: %w", err)
	}
	return &Index{index: idx, path: path}, nil
}

// indexMapping analyzes content for scoring and keeps every other field as
// an exact keyword term so filters compile to term queries.
func indexMapping() (*mapping.IndexMappingImpl, error) {
	mapping := bleve.NewIndexMapping()
	mapping.DefaultAnalyzer = keyword.Name

	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = standard.Name
	contentField.Store = true

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("content", contentField)
	mapping.DefaultMapping = doc
	return mapping, nil
}

// Index adds or replaces documents.
func (ix *Index) Index(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return fmt.Errorf("keyword index is closed")
	}

	batch := ix.index.NewBatch()
	for _, doc := range docs {
		fields := make(map[string]interface{}, len(doc.Metadata)+1)
		for k, v := range doc.Metadata {
			fields[k] = v
		}
		fields["content"] = doc.Content
		if err := batch.Index(doc.ID, fields); err != nil {
			return fmt.Errorf("indexing document %s: %w", doc.ID, err)
		}
	}
	if err := ix.index.Batch(batch); err != nil {
		return fmt.Errorf("writing keyword batch: %w", err)
	}
	return nil
}

// Search runs a BM25 match query over chunk content. Filters compile to
// native bleve queries where the operator allows; otherwise the query
// oversamples and the shared evaluator is applied to the hits. Scores are
// raw BM25; hybrid search normalizes them.
func (ix *Index) Search(ctx context.Context, query string, limit int, f filter.Filter) ([]api.SearchResult, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		return nil, fmt.Errorf("keyword index is closed")
	}
	if strings.TrimSpace(query) == "" || limit < 1 {
		return nil, nil
	}

	match := bleve.NewMatchQuery(query)
	match.SetField("content")

	native, err := compileQuery(f)
	if err != nil && err != errNotNative {
		return nil, err
	}
	nativeOK := err == nil

	var searchQuery = bleve.NewConjunctionQuery(match)
	fetch := limit
	if nativeOK && native != nil {
		searchQuery.AddQuery(native)
	} else if !nativeOK {
		fetch = limit * 4
		if fetch < limit+16 {
			fetch = limit + 16
		}
	}

	req := bleve.NewSearchRequestOptions(searchQuery, fetch, 0, false)
	req.Fields = []string{"*"}

	result, err := ix.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	results := make([]api.SearchResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		metadata := unflattenFields(hit.Fields)
		content, _ := metadata["content"].(string)
		delete(metadata, "content")

		if !nativeOK {
			fileID, _ := metadata[api.AttrFileID].(string)
			ok, err := filter.Matches(f, metadata, fileID)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}

		fileID, _ := metadata[api.AttrFileID].(string)
		filename, _ := metadata[api.AttrFilename].(string)
		if metadata[api.AttrChunkID] == nil || metadata[api.AttrChunkID] == "" {
			metadata[api.AttrChunkID] = hit.ID
		}
		results = append(results, api.SearchResult{
			FileID:     fileID,
			Filename:   filename,
			Score:      hit.Score,
			Content:    []api.SearchContent{{Type: "text", Text: content}},
			Attributes: metadata,
		})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

// DeleteByFile removes every document of the file and reports how many.
func (ix *Index) DeleteByFile(ctx context.Context, fileID string) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return 0, fmt.Errorf("keyword index is closed")
	}

	term := bleve.NewTermQuery(fileID)
	term.SetField(api.AttrFileID)
	req := bleve.NewSearchRequestOptions(term, 10000, 0, false)

	result, err := ix.index.SearchInContext(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("finding documents of file %s: %w", fileID, err)
	}
	if len(result.Hits) == 0 {
		return 0, nil
	}

	batch := ix.index.NewBatch()
	for _, hit := range result.Hits {
		batch.Delete(hit.ID)
	}
	if err := ix.index.Batch(batch); err != nil {
		return 0, fmt.Errorf("deleting documents of file %s: %w", fileID, err)
	}
	return len(result.Hits), nil
}

// Close releases the index.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return nil
	}
	ix.closed = true
	return ix.index.Close()
}

// unflattenFields rebuilds nested maps from bleve's dotted stored-field
// names so the filter evaluator's path lookup works on the result.
func unflattenFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for key, value := range fields {
		parts := strings.Split(key, ".")
		current := out
		for i, part := range parts {
			if i == len(parts)-1 {
				current[part] = value
				break
			}
			next, ok := current[part].(map[string]interface{})
			if !ok {
				next = make(map[string]interface{})
				current[part] = next
			}
			current = next
		}
	}
	return out
}
