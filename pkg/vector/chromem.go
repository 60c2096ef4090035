package vector

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/openresponses/openresponses/pkg/config"
	"github.com/openresponses/openresponses/pkg/filter"
)

// ChromemProvider implements Provider using chromem-go for embedded vector
// storage. It is the zero-config default: pure Go, in-process, with optional
// gob persistence. All vectors live in RAM, which bounds it to small
// deployments; use qdrant or pinecone beyond that.
type ChromemProvider struct {
	db          *chromem.DB
	persistPath string
	compress    bool

	mu         sync.Mutex
	collection *chromem.Collection
	name       string

	// chromem has no metadata lookup, so file metadata is tracked beside
	// the index. The map starts cold after a persistent reload.
	files map[string]map[string]interface{}
}

// NewChromemProvider opens or creates the embedded database.
func NewChromemProvider(cfg *config.ChromemConfig) (*ChromemProvider, error) {
	var db *chromem.DB

	if cfg.Path != "" {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("creating persist directory: %w", err)
		}
		dbPath := chromemDBPath(cfg.Path, cfg.Compress)
		if _, statErr := os.Stat(dbPath); statErr == nil {
			loaded, err := chromem.NewPersistentDB(dbPath, cfg.Compress)
			if err != nil {
				slog.Warn("failed to load existing vector database, creating new",
					"path", dbPath, "error", err)
				db = chromem.NewDB()
			} else {
				slog.Info("loaded vector database", "path", dbPath)
				db = loaded
			}
		} else {
			db = chromem.NewDB()
		}
	} else {
		db = chromem.NewDB()
		slog.Info("created in-memory vector database (no persistence)")
	}

	p := &ChromemProvider{
		db:          db,
		persistPath: cfg.Path,
		compress:    cfg.Compress,
		name:        cfg.Collection,
		files:       make(map[string]map[string]interface{}),
	}
	if err := p.ensureCollection(); err != nil {
		return nil, err
	}
	return p, nil
}

func chromemDBPath(dir string, compress bool) string {
	path := filepath.Join(dir, "vectors.gob")
	if compress {
		path += ".gz"
	}
	return path
}

func (p *ChromemProvider) Name() string { return "chromem" }

func (p *ChromemProvider) ensureCollection() error {
	// Vectors arrive pre-computed; the embedding func must never run.
	embed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("chromem embedding func called but vectors are pre-computed")
	}
	col, err := p.db.GetOrCreateCollection(p.name, nil, embed)
	if err != nil {
		return fmt.Errorf("creating collection %q: %w", p.name, err)
	}
	p.collection = col
	return nil
}

// Upsert writes the points. Chunk metadata is flattened to strings, which is
// what chromem stores; the full typed payload is carried in the content
// sidecar fields the indexer stamps.
func (p *ChromemProvider) Upsert(ctx context.Context, points []Point) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	docs := make([]chromem.Document, 0, len(points))
	for _, pt := range points {
		metadata := make(map[string]string, len(pt.Metadata))
		for k, v := range pt.Metadata {
			metadata[k] = fmt.Sprint(v)
		}
		content, _ := pt.Metadata["content"].(string)
		docs = append(docs, chromem.Document{
			ID:        pt.ID,
			Content:   content,
			Metadata:  metadata,
			Embedding: pt.Vector,
		})
	}
	if err := p.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("upserting documents: %w", err)
	}
	for _, pt := range points {
		if fileID, ok := pt.Metadata["file_id"].(string); ok && fileID != "" {
			if _, seen := p.files[fileID]; !seen {
				p.files[fileID] = pt.Metadata
			}
		}
	}
	if err := p.persist(); err != nil {
		slog.Warn("failed to persist after upsert", "error", err)
	}
	return nil
}

// Search queries by vector. chromem only pre-filters exact string matches,
// so the filter is applied after the query with the evaluator, over an
// oversampled candidate set.
func (p *ChromemProvider) Search(ctx context.Context, vector []float32, limit int, f filter.Filter) ([]Result, error) {
	p.mu.Lock()
	count := p.collection.Count()
	p.mu.Unlock()
	if count == 0 {
		return nil, nil
	}

	fetch := oversample(limit, f)
	if fetch > count {
		fetch = count
	}

	hits, err := p.collection.QueryEmbedding(ctx, vector, fetch, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		metadata := make(map[string]interface{}, len(hit.Metadata))
		for k, v := range hit.Metadata {
			metadata[k] = v
		}
		results = append(results, Result{
			ID:       hit.ID,
			Score:    hit.Similarity,
			Content:  hit.Content,
			Metadata: metadata,
		})
	}

	results, err = postFilter(results, f)
	if err != nil {
		return nil, err
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// DeleteByFile removes every document of the file. The collection count
// before and after proves whether anything was removed.
func (p *ChromemProvider) DeleteByFile(ctx context.Context, fileID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	before := p.collection.Count()
	if err := p.collection.Delete(ctx, map[string]string{"file_id": fileID}, nil); err != nil {
		return false, fmt.Errorf("deleting documents of file %s: %w", fileID, err)
	}
	deleted := p.collection.Count() < before
	delete(p.files, fileID)
	if err := p.persist(); err != nil {
		slog.Warn("failed to persist after delete", "error", err)
	}
	return deleted, nil
}

// FileMetadata returns one document's metadata for the file, or nil.
func (p *ChromemProvider) FileMetadata(ctx context.Context, fileID string) (map[string]interface{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	meta, ok := p.files[fileID]
	if !ok {
		return nil, nil
	}
	return meta, nil
}

// Close persists the database if persistence is enabled.
func (p *ChromemProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.persist()
}

func (p *ChromemProvider) persist() error {
	if p.persistPath == "" {
		return nil
	}
	dbPath := chromemDBPath(p.persistPath, p.compress)
	//nolint:staticcheck // Export is deprecated but has no replacement yet
	if err := p.db.Export(dbPath, p.compress, ""); err != nil {
		return fmt.Errorf("persisting database: %w", err)
	}
	return nil
}

var _ Provider = (*ChromemProvider)(nil)
