// Package server exposes the service's HTTP API: export registration,
// pipeline and enrichment job endpoints, job polling, and vector search.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/rmarkelov/archivarius/internal/config"
	"github.com/rmarkelov/archivarius/internal/database"
	"github.com/rmarkelov/archivarius/internal/embed"
	"github.com/rmarkelov/archivarius/internal/enrich"
	"github.com/rmarkelov/archivarius/internal/jobs"
	"github.com/rmarkelov/archivarius/internal/pipeline"
	"github.com/rmarkelov/archivarius/internal/vector"
)

// Server wires the HTTP API over the pipeline and enrichment components.
type Server struct {
	httpServer *http.Server
	cfg        config.ServerConfig

	store     database.Store
	ingestor  *pipeline.Ingestor
	describer *enrich.Describer
	embedder  *enrich.Embedder
	model     embed.TextEmbedder
	vectors   *vector.Store
	runner    *jobs.Runner

	garbageSpecPath string
	logger          *slog.Logger
}

// Deps collects everything the server needs.
type Deps struct {
	Config          config.ServerConfig
	Store           database.Store
	Ingestor        *pipeline.Ingestor
	Describer       *enrich.Describer
	Embedder        *enrich.Embedder
	Model           embed.TextEmbedder
	Vectors         *vector.Store
	Runner          *jobs.Runner
	GarbageSpecPath string
	Logger          *slog.Logger
}

// New creates the server with its routes registered.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Server{
		cfg:             deps.Config,
		store:           deps.Store,
		ingestor:        deps.Ingestor,
		describer:       deps.Describer,
		embedder:        deps.Embedder,
		model:           deps.Model,
		vectors:         deps.Vectors,
		runner:          deps.Runner,
		garbageSpecPath: deps.GarbageSpecPath,
		logger:          logger.With("component", "server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /exports", s.handleAddExport)
	mux.HandleFunc("GET /exports", s.handleListExports)
	mux.HandleFunc("GET /exports/{id}", s.handleGetExport)

	mux.HandleFunc("POST /exports/{id}/ingest", s.handleIngest)
	mux.HandleFunc("POST /exports/{id}/describe", s.handleDescribe)
	mux.HandleFunc("POST /exports/{id}/embed", s.handleEmbed)

	mux.HandleFunc("GET /jobs", s.handleListJobs)
	mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)

	mux.HandleFunc("GET /experiments", s.handleListExperiments)
	mux.HandleFunc("GET /experiments/{id}", s.handleGetExperiment)
	mux.HandleFunc("DELETE /experiments/{id}", s.handleDeleteExperiment)

	mux.HandleFunc("POST /search", s.handleSearch)

	s.httpServer = &http.Server{
		Addr:         deps.Config.Addr,
		Handler:      s.logRequests(mux),
		ReadTimeout:  deps.Config.ReadTimeout,
		WriteTimeout: deps.Config.WriteTimeout,
	}
	return s
}

// Handler returns the server's root handler, routes and middleware included.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return <-errCh
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.DebugContext(r.Context(), "Handling request",
			"method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
