package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openresponses/openresponses/pkg/api"
	"github.com/openresponses/openresponses/pkg/filter"
	"github.com/openresponses/openresponses/pkg/ident"
	"github.com/openresponses/openresponses/pkg/rag"
	"github.com/openresponses/openresponses/pkg/search"
	"github.com/openresponses/openresponses/pkg/store"
)

type createVectorStoreRequest struct {
	Name     string            `json:"name"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type createFileRequest struct {
	FileID           string                 `json:"file_id,omitempty"`
	Filename         string                 `json:"filename"`
	Content          string                 `json:"content"`
	Attributes       map[string]interface{} `json:"attributes,omitempty"`
	ChunkingStrategy *rag.ChunkingStrategy  `json:"chunking_strategy,omitempty"`
}

type searchRequest struct {
	Query          string              `json:"query"`
	MaxNumResults  int                 `json:"max_num_results,omitempty"`
	RankingOptions *api.RankingOptions `json:"ranking_options,omitempty"`
	Filters        json.RawMessage     `json:"filters,omitempty"`
}

type searchResponse struct {
	Object      string             `json:"object"`
	SearchQuery string             `json:"search_query"`
	Data        []api.SearchResult `json:"data"`
}

type listResponse struct {
	Object string      `json:"object"`
	Data   interface{} `json:"data"`
}

type deletedResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

// requireStore guards the vector-store endpoints behind a configured store.
func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		writeError(w, api.NewError(api.KindNotFound, "vector stores are not configured"))
		return false
	}
	return true
}

func (s *Server) handleCreateVectorStore(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	var req createVectorStoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, api.WrapError(api.KindInvalidArgument, "decoding request body", err))
		return
	}

	vs := &store.VectorStore{
		ID:       ident.NewVectorStoreID(),
		Name:     req.Name,
		Status:   store.StatusCompleted,
		Metadata: req.Metadata,
	}
	if err := s.store.CreateVectorStore(r.Context(), vs); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vs)
}

func (s *Server) handleListVectorStores(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	stores, err := s.store.ListVectorStores(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Object: "list", Data: stores})
}

func (s *Server) handleGetVectorStore(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	vs, err := s.store.GetVectorStore(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vs)
}

// handleDeleteVectorStore removes the store record, its file records, and
// every indexed chunk of those files.
func (s *Server) handleDeleteVectorStore(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	id := chi.URLParam(r, "id")
	fileIDs, err := s.store.DeleteVectorStore(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if s.indexer != nil {
		for _, fileID := range fileIDs {
			if _, err := s.indexer.DeleteFile(r.Context(), fileID); err != nil {
				s.logger.Warn("cascade delete failed", "vector_store_id", id, "file_id", fileID, "error", err)
			}
		}
	}
	writeJSON(w, http.StatusOK, deletedResponse{ID: id, Object: "vector_store.deleted", Deleted: true})
}

func (s *Server) handleSearchVectorStore(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	if s.hybrid == nil {
		writeError(w, api.NewError(api.KindNotFound, "search is not configured"))
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetVectorStore(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, api.WrapError(api.KindInvalidArgument, "decoding request body", err))
		return
	}
	f, err := filter.ParseJSON(req.Filters)
	if err != nil {
		writeError(w, api.WrapError(api.KindFilterApplication, "parsing filters", err))
		return
	}

	maxResults := req.MaxNumResults
	if maxResults < 1 {
		maxResults = s.searchCfg.MaxResults
	}

	results, err := s.hybrid.Search(r.Context(), search.HybridParams{
		Query:          req.Query,
		MaxResults:     maxResults,
		Filter:         f,
		VectorStoreIDs: []string{id},
		Ranking:        req.RankingOptions,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Object:      "vector_store.search_results.page",
		SearchQuery: req.Query,
		Data:        results,
	})
}

// handleCreateVectorStoreFile ingests one file synchronously: the record
// moves in_progress -> completed, or failed with the error recorded.
func (s *Server) handleCreateVectorStoreFile(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	if s.indexer == nil {
		writeError(w, api.NewError(api.KindNotFound, "file ingestion is not configured"))
		return
	}
	storeID := chi.URLParam(r, "id")
	if _, err := s.store.GetVectorStore(r.Context(), storeID); err != nil {
		writeError(w, err)
		return
	}

	var req createFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, api.WrapError(api.KindInvalidArgument, "decoding request body", err))
		return
	}
	if req.Content == "" {
		writeError(w, api.NewError(api.KindInvalidArgument, "content is required"))
		return
	}
	fileID := req.FileID
	if fileID == "" {
		fileID = ident.NewFileID()
	}

	record := &store.VectorStoreFile{
		ID:            fileID,
		VectorStoreID: storeID,
		Filename:      req.Filename,
		Status:        store.StatusInProgress,
		Attributes:    req.Attributes,
	}
	if err := s.store.UpsertVectorStoreFile(r.Context(), record); err != nil {
		writeError(w, err)
		return
	}

	chunks, err := s.indexer.IndexFile(r.Context(), fileID, req.Filename, storeID, req.Content, req.Attributes, req.ChunkingStrategy)
	if err != nil {
		record.Status = store.StatusFailed
		record.LastError = err.Error()
		if upsertErr := s.store.UpsertVectorStoreFile(r.Context(), record); upsertErr != nil {
			s.logger.Warn("recording failed ingest", "file_id", fileID, "error", upsertErr)
		}
		writeError(w, err)
		return
	}

	record.Status = store.StatusCompleted
	record.ChunkCount = chunks
	if err := s.store.UpsertVectorStoreFile(r.Context(), record); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleListVectorStoreFiles(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	files, err := s.store.ListVectorStoreFiles(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Object: "list", Data: files})
}

func (s *Server) handleGetVectorStoreFile(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	file, err := s.store.GetVectorStoreFile(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "file_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, file)
}

func (s *Server) handleDeleteVectorStoreFile(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	storeID := chi.URLParam(r, "id")
	fileID := chi.URLParam(r, "file_id")

	existed, err := s.store.DeleteVectorStoreFile(r.Context(), storeID, fileID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !existed {
		writeError(w, api.NewError(api.KindNotFound, "vector store file "+fileID+" not found"))
		return
	}
	if s.indexer != nil {
		if _, err := s.indexer.DeleteFile(r.Context(), fileID); err != nil {
			s.logger.Warn("deleting indexed chunks failed", "file_id", fileID, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, deletedResponse{ID: fileID, Object: "vector_store.file.deleted", Deleted: true})
}
