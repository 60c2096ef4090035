package vector

import (
	"context"
	"fmt"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/openresponses/openresponses/pkg/config"
	"github.com/openresponses/openresponses/pkg/filter"
)

// PineconeProvider implements Provider on the Pinecone managed service. The
// index must already exist; deployments create it out of band.
type PineconeProvider struct {
	conn      *pinecone.IndexConnection
	namespace string
}

// NewPineconeProvider connects to the configured Pinecone index host.
func NewPineconeProvider(cfg *config.PineconeConfig) (*PineconeProvider, error) {
	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("creating pinecone client: %w", err)
	}
	conn, err := client.Index(pinecone.NewIndexConnParams{
		Host:      cfg.IndexHost,
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to pinecone index %s: %w", cfg.IndexHost, err)
	}
	return &PineconeProvider{conn: conn, namespace: cfg.Namespace}, nil
}

func (p *PineconeProvider) Name() string { return "pinecone" }

// Upsert writes the points.
func (p *PineconeProvider) Upsert(ctx context.Context, points []Point) error {
	vectors := make([]*pinecone.Vector, 0, len(points))
	for _, pt := range points {
		var metadata *pinecone.Metadata
		if len(pt.Metadata) > 0 {
			var err error
			metadata, err = structpb.NewStruct(pt.Metadata)
			if err != nil {
				return fmt.Errorf("converting metadata for point %s: %w", pt.ID, err)
			}
		}
		vectors = append(vectors, &pinecone.Vector{
			Id:       pt.ID,
			Values:   pt.Vector,
			Metadata: metadata,
		})
	}
	if _, err := p.conn.UpsertVectors(ctx, vectors); err != nil {
		return fmt.Errorf("upserting %d vectors: %w", len(vectors), err)
	}
	return nil
}

// Search queries by vector. Pinecone's metadata filter only covers flat
// equality, so the AST is applied after the query with the evaluator.
func (p *PineconeProvider) Search(ctx context.Context, vector []float32, limit int, f filter.Filter) ([]Result, error) {
	fetch := oversample(limit, f)
	resp, err := p.conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(fetch),
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("querying pinecone: %w", err)
	}

	results := make([]Result, 0, len(resp.Matches))
	for _, match := range resp.Matches {
		if match.Vector == nil {
			continue
		}
		metadata := map[string]interface{}{}
		if match.Vector.Metadata != nil {
			metadata = match.Vector.Metadata.AsMap()
		}
		content, _ := metadata["content"].(string)
		results = append(results, Result{
			ID:       match.Vector.Id,
			Score:    match.Score,
			Content:  content,
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

// DeleteByFile removes every vector of the file.
func (p *PineconeProvider) DeleteByFile(ctx context.Context, fileID string) (bool, error) {
	meta, err := p.FileMetadata(ctx, fileID)
	if err != nil {
		return false, err
	}
	if meta == nil {
		return false, nil
	}
	selector, err := structpb.NewStruct(map[string]interface{}{"file_id": fileID})
	if err != nil {
		return false, fmt.Errorf("building delete filter: %w", err)
	}
	if err := p.conn.DeleteVectorsByFilter(ctx, selector); err != nil {
		return false, fmt.Errorf("deleting vectors of file %s: %w", fileID, err)
	}
	return true, nil
}

// FileMetadata returns the payload of one of the file's vectors, or nil.
func (p *PineconeProvider) FileMetadata(ctx context.Context, fileID string) (map[string]interface{}, error) {
	selector, err := structpb.NewStruct(map[string]interface{}{"file_id": fileID})
	if err != nil {
		return nil, fmt.Errorf("building metadata filter: %w", err)
	}
	stats, err := p.conn.DescribeIndexStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("describing index: %w", err)
	}
	if stats.TotalVectorCount == 0 {
		return nil, nil
	}
	// Probe with a zero vector; the filter alone decides the hit set.
	resp, err := p.conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          make([]float32, stats.Dimension),
		TopK:            1,
		MetadataFilter:  selector,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("probing file %s: %w", fileID, err)
	}
	if len(resp.Matches) == 0 || resp.Matches[0].Vector == nil || resp.Matches[0].Vector.Metadata == nil {
		return nil, nil
	}
	return resp.Matches[0].Vector.Metadata.AsMap(), nil
}

func (p *PineconeProvider) Close() error { return p.conn.Close() }

var _ Provider = (*PineconeProvider)(nil)
