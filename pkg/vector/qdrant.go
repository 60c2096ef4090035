package vector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/qdrant/go-client/qdrant"

	"github.com/openresponses/openresponses/pkg/config"
	"github.com/openresponses/openresponses/pkg/filter"
)

// QdrantProvider implements Provider using the Qdrant vector database over
// its gRPC API. Collections are created lazily on first upsert with cosine
// distance and the dimension of the first point.
type QdrantProvider struct {
	client     *qdrant.Client
	collection string

	mu      sync.Mutex
	ensured bool
}

// NewQdrantProvider connects to the configured Qdrant instance.
func NewQdrantProvider(cfg *config.QdrantConfig, collection string) (*QdrantProvider, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client for %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &QdrantProvider{client: client, collection: collection}, nil
}

func (p *QdrantProvider) Name() string { return "qdrant" }

func (p *QdrantProvider) ensureCollection(ctx context.Context, dimension int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ensured {
		return nil
	}

	exists, err := p.client.CollectionExists(ctx, p.collection)
	if err != nil {
		return fmt.Errorf("checking collection %q: %w", p.collection, err)
	}
	if !exists {
		err = p.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: p.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil && !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("creating collection %q: %w", p.collection, err)
		}
	}
	p.ensured = true
	return nil
}

// Upsert writes the points, creating the collection if needed.
func (p *QdrantProvider) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := p.ensureCollection(ctx, len(points[0].Vector)); err != nil {
		return err
	}

	qdrantPoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, pt := range points {
		payload := make(map[string]*qdrant.Value, len(pt.Metadata))
		for key, value := range pt.Metadata {
			val, err := qdrant.NewValue(value)
			if err != nil {
				return fmt.Errorf("converting payload value for key %q: %w", key, err)
			}
			payload[key] = val
		}
		qdrantPoints = append(qdrantPoints, &qdrant.PointStruct{
			Id:      qdrant.NewID(pointUUID(pt.ID)),
			Vectors: qdrant.NewVectors(pt.Vector...),
			Payload: payload,
		})
	}

	_, err := p.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: p.collection,
		Points:         qdrantPoints,
	})
	if err != nil {
		return fmt.Errorf("upserting %d points: %w", len(qdrantPoints), err)
	}
	return nil
}

// Search runs a similarity query. Filters compile to native Qdrant
// conditions where the operator allows it; otherwise the query oversamples
// and the evaluator is applied to the hits, which is exact.
func (p *QdrantProvider) Search(ctx context.Context, vector []float32, limit int, f filter.Filter) ([]Result, error) {
	native, err := compileQdrantFilter(f)
	if err != nil && !errors.Is(err, errNotNative) {
		return nil, err
	}
	nativeOK := err == nil

	fetch := limit
	if !nativeOK {
		fetch = oversample(limit, f)
	}

	req := &qdrant.SearchPoints{
		CollectionName: p.collection,
		Vector:         vector,
		Limit:          uint64(fetch),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if nativeOK && native != nil {
		req.Filter = native
	}

	scored, err := p.client.GetPointsClient().Search(ctx, req)
	if err != nil {
		if strings.Contains(err.Error(), "doesn't exist") || strings.Contains(err.Error(), "not found") {
			return nil, nil
		}
		return nil, fmt.Errorf("searching points: %w", err)
	}

	results := convertScoredPoints(scored.GetResult())
	if !nativeOK {
		results, err = postFilter(results, f)
		if err != nil {
			return nil, err
		}
		if len(results) > limit {
			results = results[:limit]
		}
	}
	return results, nil
}

// DeleteByFile removes every point of the file. Qdrant's filter delete does
// not report counts, so existence is probed first to decide the return.
func (p *QdrantProvider) DeleteByFile(ctx context.Context, fileID string) (bool, error) {
	meta, err := p.FileMetadata(ctx, fileID)
	if err != nil {
		return false, err
	}
	if meta == nil {
		return false, nil
	}
	_, err = p.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: p.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: fileIDFilter(fileID),
			},
		},
	})
	if err != nil {
		return false, fmt.Errorf("deleting points of file %s: %w", fileID, err)
	}
	return true, nil
}

// FileMetadata returns the payload of one of the file's points, or nil.
func (p *QdrantProvider) FileMetadata(ctx context.Context, fileID string) (map[string]interface{}, error) {
	resp, err := p.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: p.collection,
		Filter:         fileIDFilter(fileID),
		Limit:          qdrant.PtrOf(uint32(1)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		if strings.Contains(err.Error(), "doesn't exist") || strings.Contains(err.Error(), "not found") {
			return nil, nil
		}
		return nil, fmt.Errorf("scrolling points of file %s: %w", fileID, err)
	}
	if len(resp) == 0 {
		return nil, nil
	}
	return decodePayload(resp[0].GetPayload()), nil
}

func (p *QdrantProvider) Close() error { return p.client.Close() }

func fileIDFilter(fileID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("file_id", fileID)},
	}
}

// pointUUID derives a deterministic UUID string from a chunk id so Qdrant
// accepts it as a point id. Chunk ids are 16 hex chars; pad them into the
// UUID shape.
func pointUUID(id string) string {
	hex := make([]byte, 0, 32)
	for _, c := range []byte(id) {
		if ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F') {
			hex = append(hex, c)
		}
	}
	for len(hex) < 32 {
		hex = append(hex, '0')
	}
	hex = hex[:32]
	return fmt.Sprintf("%s-%s-%s-%s-%s", hex[0:8], hex[8:12], hex[12:16], hex[16:20], hex[20:32])
}

// errNotNative marks a filter that has no Qdrant-native translation; the
// caller falls back to exact post-filtering.
var errNotNative = errors.New("filter not expressible natively")

// compileQdrantFilter translates the filter AST into Qdrant conditions.
// eq/ne on scalars, numeric ordering, and string-list in are native; like,
// ilike, and ordering over non-numerics are not.
func compileQdrantFilter(f filter.Filter) (*qdrant.Filter, error) {
	if f == nil {
		return nil, nil
	}
	cond, err := compileQdrantCondition(f)
	if err != nil {
		return nil, err
	}
	if sub := cond.GetFilter(); sub != nil {
		return sub, nil
	}
	return &qdrant.Filter{Must: []*qdrant.Condition{cond}}, nil
}

func compileQdrantCondition(f filter.Filter) (*qdrant.Condition, error) {
	switch node := f.(type) {
	case filter.Comparison:
		return compileQdrantComparison(node)
	case filter.Compound:
		children := make([]*qdrant.Condition, 0, len(node.Filters))
		for _, child := range node.Filters {
			c, err := compileQdrantCondition(child)
			if err != nil {
				return nil, err
			}
			children = append(children, c)
		}
		var sub *qdrant.Filter
		switch node.Op {
		case filter.OpAnd:
			sub = &qdrant.Filter{Must: children}
		case filter.OpOr:
			sub = &qdrant.Filter{Should: children}
		case filter.OpNot:
			if len(children) != 1 {
				return nil, fmt.Errorf("not filter requires exactly one child, got %d", len(children))
			}
			sub = &qdrant.Filter{MustNot: children}
		default:
			return nil, fmt.Errorf("unknown compound op %q", node.Op)
		}
		return &qdrant.Condition{ConditionOneOf: &qdrant.Condition_Filter{Filter: sub}}, nil
	default:
		return nil, fmt.Errorf("unknown filter node %T", f)
	}
}

func compileQdrantComparison(c filter.Comparison) (*qdrant.Condition, error) {
	switch c.Op {
	case filter.OpEq, filter.OpNe:
		cond, ok := qdrantMatch(c.Key, c.Value)
		if !ok {
			return nil, errNotNative
		}
		if c.Op == filter.OpNe {
			return &qdrant.Condition{ConditionOneOf: &qdrant.Condition_Filter{
				Filter: &qdrant.Filter{MustNot: []*qdrant.Condition{cond}},
			}}, nil
		}
		return cond, nil
	case filter.OpGt, filter.OpGte, filter.OpLt, filter.OpLte:
		num, ok := asFloat(c.Value)
		if !ok {
			return nil, errNotNative
		}
		r := &qdrant.Range{}
		switch c.Op {
		case filter.OpGt:
			r.Gt = &num
		case filter.OpGte:
			r.Gte = &num
		case filter.OpLt:
			r.Lt = &num
		case filter.OpLte:
			r.Lte = &num
		}
		return qdrant.NewRange(c.Key, r), nil
	case filter.OpIn:
		items, ok := c.Value.([]interface{})
		if !ok {
			return nil, errNotNative
		}
		keywords := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, errNotNative
			}
			keywords = append(keywords, s)
		}
		return qdrant.NewMatchKeywords(c.Key, keywords...), nil
	case filter.OpLike, filter.OpILike:
		return nil, errNotNative
	default:
		return nil, fmt.Errorf("unknown comparison op %q", c.Op)
	}
}

func qdrantMatch(key string, value interface{}) (*qdrant.Condition, bool) {
	switch v := value.(type) {
	case string:
		return qdrant.NewMatch(key, v), true
	case bool:
		return qdrant.NewMatchBool(key, v), true
	case int:
		return qdrant.NewMatchInt(key, int64(v)), true
	case int64:
		return qdrant.NewMatchInt(key, v), true
	case float64:
		if v == float64(int64(v)) {
			return qdrant.NewMatchInt(key, int64(v)), true
		}
		return nil, false
	default:
		return nil, false
	}
}

func asFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func convertScoredPoints(points []*qdrant.ScoredPoint) []Result {
	results := make([]Result, 0, len(points))
	for _, point := range points {
		metadata := decodePayload(point.GetPayload())
		content, _ := metadata["content"].(string)
		var id string
		if pid := point.GetId(); pid != nil {
			if uuid := pid.GetUuid(); uuid != "" {
				id = uuid
			} else {
				id = fmt.Sprintf("%d", pid.GetNum())
			}
		}
		if chunkID, ok := metadata["chunk_id"].(string); ok && chunkID != "" {
			id = chunkID
		}
		results = append(results, Result{
			ID:       id,
			Score:    point.GetScore(),
			Content:  content,
			Metadata: metadata,
		})
	}
	return results
}

func decodePayload(payload map[string]*qdrant.Value) map[string]interface{} {
	if payload == nil {
		return nil
	}
	metadata := make(map[string]interface{}, len(payload))
	for key, value := range payload {
		metadata[key] = decodeQdrantValue(value)
	}
	return metadata
}

func decodeQdrantValue(value *qdrant.Value) interface{} {
	switch v := value.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return v.StringValue
	case *qdrant.Value_IntegerValue:
		return v.IntegerValue
	case *qdrant.Value_DoubleValue:
		return v.DoubleValue
	case *qdrant.Value_BoolValue:
		return v.BoolValue
	case *qdrant.Value_ListValue:
		items := v.ListValue.GetValues()
		list := make([]interface{}, len(items))
		for i, item := range items {
			list[i] = decodeQdrantValue(item)
		}
		return list
	case *qdrant.Value_StructValue:
		fields := v.StructValue.GetFields()
		nested := make(map[string]interface{}, len(fields))
		for k, item := range fields {
			nested[k] = decodeQdrantValue(item)
		}
		return nested
	default:
		return nil
	}
}

var _ Provider = (*QdrantProvider)(nil)
