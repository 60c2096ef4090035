// Package vector provides the vector store providers (qdrant, chromem,
// pinecone) behind one Provider interface, and the Indexer that implements
// the file-level ingest and search contract on top of them: chunk, embed,
// upsert with rollback, thresholded similarity search, idempotent delete.
package vector

import (
	"context"

	"github.com/openresponses/openresponses/pkg/filter"
	"github.com/openresponses/openresponses/pkg/lexical"
)

// Point is one vector with its payload, keyed by chunk id.
type Point struct {
	ID       string
	Vector   []float32
	Metadata map[string]interface{}
}

// Result is one raw similarity hit as the provider returns it. Scores are
// provider-native; normalization happens in hybrid search.
type Result struct {
	ID       string
	Score    float32
	Content  string
	Metadata map[string]interface{}
}

// Provider is the low-level vector store contract. A provider instance is
// bound to one collection; the Indexer layers the file-level semantics on
// top.
//
// Searches are safe for concurrent use. Filters are applied exactly: a
// provider either compiles the filter to native criteria or post-filters
// the candidate set with the evaluator, and a filter it cannot apply aborts
// the search.
type Provider interface {
	Name() string

	// Upsert writes the given points. Writing an existing id replaces it.
	Upsert(ctx context.Context, points []Point) error

	// Search returns up to limit hits for the query vector, most similar
	// first, restricted to points matching f (nil matches everything).
	Search(ctx context.Context, vector []float32, limit int, f filter.Filter) ([]Result, error)

	// DeleteByFile removes every point whose file_id payload matches. The
	// returned bool is true when the provider can prove at least one point
	// was removed, false when it can prove nothing was.
	DeleteByFile(ctx context.Context, fileID string) (bool, error)

	// FileMetadata returns the payload of one point of the given file, or
	// nil when the file has no points.
	FileMetadata(ctx context.Context, fileID string) (map[string]interface{}, error)

	Close() error
}

// Keyword is the slice of the lexical index the Indexer keeps in sync with
// the vector side: every indexed chunk is also a keyword document, and file
// deletes cascade to both. A nil Keyword disables the lexical leg.
type Keyword interface {
	Index(ctx context.Context, docs []lexical.Document) error
	DeleteByFile(ctx context.Context, fileID string) (int, error)
}

// postFilter applies f exactly to results the provider could not filter
// natively. Evaluation errors abort the search (fail closed).
func postFilter(results []Result, f filter.Filter) ([]Result, error) {
	if f == nil {
		return results, nil
	}
	kept := results[:0]
	for _, r := range results {
		fileID, _ := r.Metadata["file_id"].(string)
		ok, err := filter.Matches(f, r.Metadata, fileID)
		if err != nil {
			return nil, err
		}
		if ok {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

// oversample widens the fetch limit when a filter must be applied after the
// provider search, so post-filtering still has enough candidates.
func oversample(limit int, f filter.Filter) int {
	if f == nil {
		return limit
	}
	widened := limit * 4
	if widened < limit+16 {
		widened = limit + 16
	}
	return widened
}
