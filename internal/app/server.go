package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/openshelf-dev/openshelf/internal/api/handlers"
	"github.com/openshelf-dev/openshelf/internal/config"
	"github.com/openshelf-dev/openshelf/internal/core/ingestion_engine"
	"github.com/openshelf-dev/openshelf/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        *zap.Logger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, docs *services.DocumentService, retrieval *services.RetrievalService, ing ingestion_engine.Ingestor, log *zap.Logger) *Server {
	docHandler := handlers.NewDocumentHandler(docs, ing)
	queryHandler := handlers.NewQueryHandler(retrieval)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8888"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(api chi.Router) {
		api.Post("/documents/upload", docHandler.UploadDocument)
		api.Get("/documents", docHandler.GetDocuments)
		api.Get("/documents/{document_id}", docHandler.GetDocument)
		api.Get("/documents/{document_id}/pages", docHandler.GetPages)
		api.Post("/documents/{document_id}/ingest", docHandler.IngestDocument)
		api.Post("/documents/{document_id}/query", queryHandler.QueryDocument)
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv, log: log}
}

// Start runs the HTTP server.
func (s *Server) Start() {
	s.log.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.log.Fatal("server error", zap.Error(err))
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
