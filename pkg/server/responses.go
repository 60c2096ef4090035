package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openresponses/openresponses/pkg/api"
)

func (s *Server) handleCreateResponse(w http.ResponseWriter, r *http.Request) {
	var req api.ResponseCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, api.WrapError(api.KindInvalidArgument, "decoding request body", err))
		return
	}

	if req.Stream {
		s.streamResponse(w, r, &req)
		return
	}

	ctx := r.Context()
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	completion, err := s.orchestrator.Respond(ctx, &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, completion)
}

func (s *Server) streamResponse(w http.ResponseWriter, r *http.Request, req *api.ResponseCreateRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, api.NewError(api.KindInvalidArgument, "streaming is not supported by this connection"))
		return
	}

	sink := &sseSink{w: w, flusher: flusher}
	if err := s.orchestrator.Stream(r.Context(), req, sink); err != nil {
		if !sink.started {
			writeError(w, err)
			return
		}
		s.logger.Warn("stream aborted", "error", err)
	}
}

func (s *Server) handleGetResponse(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, api.NewError(api.KindPreviousResponseNotFound, "response storage is not configured"))
		return
	}

	completion, err := s.store.GetResponse(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, completion)
}
