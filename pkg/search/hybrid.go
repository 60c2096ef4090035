// Package search implements retrieval on top of the vector and keyword
// indexes: score-fused hybrid search and the bounded agentic controller
// that drives iterative retrieval with an LLM in the loop.
package search

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/openresponses/openresponses/pkg/api"
	"github.com/openresponses/openresponses/pkg/filter"
	"github.com/openresponses/openresponses/pkg/observability"
)

// DefaultAlpha weights the vector leg in score fusion.
const DefaultAlpha = 0.7

// VectorSearcher is the dense leg, served by the vector indexer.
type VectorSearcher interface {
	SearchSimilar(ctx context.Context, query string, limit int, f filter.Filter) ([]api.SearchResult, error)
}

// LexicalSearcher is the sparse leg, served by the keyword index.
type LexicalSearcher interface {
	Search(ctx context.Context, query string, limit int, f filter.Filter) ([]api.SearchResult, error)
}

// HybridParams is one hybrid search invocation.
type HybridParams struct {
	Query          string
	MaxResults     int
	Filter         filter.Filter
	VectorStoreIDs []string

	// Alpha overrides the configured fusion weight when non-nil.
	Alpha *float64

	// Ranking tunes the result cut, notably score_threshold on the fused
	// scores.
	Ranking *api.RankingOptions
}

// Hybrid fans a query out to both legs and fuses the scores.
type Hybrid struct {
	vector  VectorSearcher
	lexical LexicalSearcher
	alpha   float64
	tracer  trace.Tracer
}

// NewHybrid wires the two legs. lexical may be nil, which forces pure
// vector search regardless of alpha. A non-positive alpha selects the
// default.
func NewHybrid(vector VectorSearcher, lexical LexicalSearcher, alpha float64) *Hybrid {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	return &Hybrid{
		vector:  vector,
		lexical: lexical,
		alpha:   alpha,
		tracer:  observability.GetTracer("search"),
	}
}

// ScopeFilter restricts a search to the given vector stores: one id is an
// equality, several a disjunction, none no restriction.
func ScopeFilter(vectorStoreIDs []string) filter.Filter {
	switch len(vectorStoreIDs) {
	case 0:
		return nil
	case 1:
		return filter.Eq(api.AttrVectorStoreID, vectorStoreIDs[0])
	default:
		children := make([]filter.Filter, 0, len(vectorStoreIDs))
		for _, id := range vectorStoreIDs {
			children = append(children, filter.Eq(api.AttrVectorStoreID, id))
		}
		return filter.Or(children...)
	}
}

// Search runs both legs in parallel, normalizes each side's scores by its
// batch maximum, and fuses them as alpha*vector + (1-alpha)*lexical. When
// both sides return the same chunk the vector side's metadata wins and the
// fused score is kept.
func (h *Hybrid) Search(ctx context.Context, params HybridParams) ([]api.SearchResult, error) {
	if params.MaxResults < 1 {
		return nil, api.InvalidArgumentf("max results must be at least 1, got %d", params.MaxResults)
	}

	ctx, span := h.tracer.Start(ctx, observability.SpanSearch,
		trace.WithAttributes(attribute.StringSlice(observability.AttrVectorStoreIDs, params.VectorStoreIDs)))
	defer span.End()

	start := time.Now()
	results, err := h.search(ctx, params)
	observability.GetGlobalMetrics().RecordSearch(ctx, 1, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
	}
	return results, err
}

func (h *Hybrid) search(ctx context.Context, params HybridParams) ([]api.SearchResult, error) {
	scoped := filter.And(ScopeFilter(params.VectorStoreIDs), params.Filter)

	alpha := h.alpha
	if params.Alpha != nil && *params.Alpha > 0 && *params.Alpha <= 1 {
		alpha = *params.Alpha
	}
	if h.lexical == nil {
		alpha = 1.0
	}

	var vectorResults, lexicalResults []api.SearchResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		vectorResults, err = h.vector.SearchSimilar(gctx, params.Query, params.MaxResults, scoped)
		if err != nil {
			return fmt.Errorf("vector search: %w", err)
		}
		return nil
	})
	if h.lexical != nil {
		g.Go(func() error {
			var err error
			lexicalResults, err = h.lexical.Search(gctx, params.Query, params.MaxResults, scoped)
			if err != nil {
				return fmt.Errorf("lexical search: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := fuse(vectorResults, lexicalResults, alpha)

	if params.Ranking != nil && params.Ranking.ScoreThreshold != nil {
		threshold := *params.Ranking.ScoreThreshold
		kept := fused[:0]
		for _, r := range fused {
			if r.Score > threshold {
				kept = append(kept, r)
			}
		}
		fused = kept
	}
	if len(fused) > params.MaxResults {
		fused = fused[:params.MaxResults]
	}
	return fused, nil
}

// fuse merges the two result batches. Each side's scores are normalized to
// [0, 1] by that side's batch maximum before weighting, so the fused score
// is comparable across queries with different raw score scales.
func fuse(vectorResults, lexicalResults []api.SearchResult, alpha float64) []api.SearchResult {
	vMax := maxScore(vectorResults)
	lMax := maxScore(lexicalResults)

	index := make(map[string]int, len(vectorResults)+len(lexicalResults))
	out := make([]api.SearchResult, 0, len(vectorResults)+len(lexicalResults))

	for _, r := range vectorResults {
		r.Score = alpha * normalize(r.Score, vMax)
		key := dedupKey(r)
		if i, ok := index[key]; ok {
			if r.Score > out[i].Score {
				out[i] = r
			}
			continue
		}
		index[key] = len(out)
		out = append(out, r)
	}
	for _, r := range lexicalResults {
		contribution := (1 - alpha) * normalize(r.Score, lMax)
		key := dedupKey(r)
		if i, ok := index[key]; ok {
			// The vector side's richer metadata stays; only the score fuses.
			out[i].Score += contribution
			continue
		}
		r.Score = contribution
		index[key] = len(out)
		out = append(out, r)
	}

	// Stable on insertion order so equal scores stay deterministic.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func maxScore(results []api.SearchResult) float64 {
	var m float64
	for _, r := range results {
		if r.Score > m {
			m = r.Score
		}
	}
	return m
}

func normalize(score, batchMax float64) float64 {
	if batchMax <= 0 {
		return 0
	}
	return score / batchMax
}

// dedupKey identifies a chunk across the two legs. chunk_id is stable when
// present; chunk_index covers older payloads, and a content hash is the
// last resort.
func dedupKey(r api.SearchResult) string {
	if id, ok := r.ChunkID(); ok {
		return r.FileID + "-" + id
	}
	if idx, ok := r.ChunkIndex(); ok {
		return fmt.Sprintf("%s-%d", r.FileID, idx)
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(r.Text()))
	return fmt.Sprintf("%s-%d", r.FileID, h.Sum32())
}
