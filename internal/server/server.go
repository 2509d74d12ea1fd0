// Package server provides the HTTP API for kotoba.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hyperjump/kotoba/internal/config"
	"github.com/hyperjump/kotoba/internal/indexer"
	"github.com/hyperjump/kotoba/internal/search"
	"github.com/hyperjump/kotoba/internal/storage"
)

// SourceWatcher reports the lexicon sources being watched.
type SourceWatcher interface {
	Sources() []string
}

// Server is the HTTP server for the kotoba API.
type Server struct {
	engine   *search.Engine
	importer *indexer.Importer
	storage  storage.Storage
	config   *config.Config
	watch    SourceWatcher
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies. watch may be nil when
// source watching is disabled.
func NewServer(
	engine *search.Engine,
	importer *indexer.Importer,
	store storage.Storage,
	cfg *config.Config,
	logger *zap.Logger,
	watch SourceWatcher,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		engine:   engine,
		importer: importer,
		storage:  store,
		config:   cfg,
		watch:    watch,
		logger:   logger,
	}
}

// Router returns the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/search", s.handleSearchQuery)
		r.Post("/search", s.handleSearch)
		r.Get("/words/{word}", s.handleGetWord)
		r.Get("/prefix", s.handlePrefix)
		r.Get("/sources", s.handleSources)
		r.Post("/rebuild", s.handleRebuild)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	return r
}

func (s *Server) corsOrigins() []string {
	if s.config != nil && len(s.config.Server.CORSOrigins) > 0 {
		return s.config.Server.CORSOrigins
	}
	return []string{"*"}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
