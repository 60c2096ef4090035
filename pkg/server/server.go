// Package server is the HTTP surface: the responses endpoints (blocking and
// SSE), the vector-store lifecycle and search endpoints, health, and the
// metrics scrape handler.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/openresponses/openresponses/pkg/config"
	"github.com/openresponses/openresponses/pkg/observability"
	"github.com/openresponses/openresponses/pkg/responses"
	"github.com/openresponses/openresponses/pkg/search"
	"github.com/openresponses/openresponses/pkg/store"
	"github.com/openresponses/openresponses/pkg/vector"
)

// Server serves the response engine over HTTP.
type Server struct {
	cfg       config.ServerConfig
	searchCfg config.SearchConfig

	orchestrator *responses.Orchestrator
	store        store.Store
	indexer      *vector.Indexer
	hybrid       *search.Hybrid
	obs          *observability.Manager

	httpServer *http.Server
	logger     *slog.Logger
}

// Options carries the server's dependencies. Store, Indexer, and Hybrid may
// be nil; the endpoints that need them answer 404 or fail accordingly.
type Options struct {
	Config       config.ServerConfig
	SearchConfig config.SearchConfig

	Orchestrator *responses.Orchestrator
	Store        store.Store
	Indexer      *vector.Indexer
	Hybrid       *search.Hybrid

	Observability *observability.Manager
}

// New assembles the server and its router.
func New(opts Options) (*Server, error) {
	if opts.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}

	s := &Server{
		cfg:          opts.Config,
		searchCfg:    opts.SearchConfig,
		orchestrator: opts.Orchestrator,
		store:        opts.Store,
		indexer:      opts.Indexer,
		hybrid:       opts.Hybrid,
		obs:          opts.Observability,
		logger:       slog.Default().With("component", "server"),
	}
	s.httpServer = &http.Server{
		Addr:    opts.Config.Address(),
		Handler: s.Handler(),
	}
	return s, nil
}

// Handler builds the router. Middleware order: request logging, tracing and
// metrics, panic recovery, CORS.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestLogger)
	if s.obs != nil {
		r.Use(observability.HTTPMiddleware(s.obs.Tracer("http"), s.obs.Metrics()))
	}
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/responses", s.handleCreateResponse)
		r.Get("/responses/{id}", s.handleGetResponse)

		r.Route("/vector_stores", func(r chi.Router) {
			r.Post("/", s.handleCreateVectorStore)
			r.Get("/", s.handleListVectorStores)
			r.Get("/{id}", s.handleGetVectorStore)
			r.Delete("/{id}", s.handleDeleteVectorStore)
			r.Post("/{id}/search", s.handleSearchVectorStore)
			r.Post("/{id}/files", s.handleCreateVectorStoreFile)
			r.Get("/{id}/files", s.handleListVectorStoreFiles)
			r.Get("/{id}/files/{file_id}", s.handleGetVectorStoreFile)
			r.Delete("/{id}/files/{file_id}", s.handleDeleteVectorStoreFile)
		})
	})

	r.Get("/healthz", s.handleHealth)
	if s.obs != nil {
		if h := s.obs.MetricsHandler(); h != nil {
			r.Method(http.MethodGet, s.obs.MetricsPath(), h)
		}
	}

	return r
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down")
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}
