package api

// Attribute keys stamped onto every indexed chunk and carried back on
// search results.
const (
	AttrFileID        = "file_id"
	AttrFilename      = "filename"
	AttrVectorStoreID = "vector_store_id"
	AttrChunkID       = "chunk_id"
	AttrChunkIndex    = "chunk_index"
	AttrTotalChunks   = "total_chunks"
)

// SearchResult is one retrieval hit. Score is normalized to [0, 1] by the
// time it leaves hybrid search; raw provider scores only appear inside the
// providers themselves.
type SearchResult struct {
	FileID     string                 `json:"file_id"`
	Filename   string                 `json:"filename"`
	Score      float64                `json:"score"`
	Content    []SearchContent        `json:"content"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

type SearchContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Text returns the concatenated text content of the result.
func (r SearchResult) Text() string {
	var out string
	for _, c := range r.Content {
		out += c.Text
	}
	return out
}

// ChunkIndex returns the chunk_index attribute when present.
func (r SearchResult) ChunkIndex() (int, bool) {
	v, ok := r.Attributes[AttrChunkIndex]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// ChunkID returns the chunk_id attribute when present.
func (r SearchResult) ChunkID() (string, bool) {
	v, ok := r.Attributes[AttrChunkID]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// VectorStoreSearchRequest is the body of POST /v1/vector_stores/{id}/search.
type VectorStoreSearchRequest struct {
	Query          string          `json:"query"`
	MaxNumResults  int             `json:"max_num_results,omitempty"`
	RankingOptions *RankingOptions `json:"ranking_options,omitempty"`
	Filters        interface{}     `json:"filters,omitempty"`
}

// VectorStoreSearchResponse is the ordered result page for a store search.
type VectorStoreSearchResponse struct {
	Object  string         `json:"object"`
	Query   string         `json:"search_query"`
	Data    []SearchResult `json:"data"`
	HasMore bool           `json:"has_more"`
}
