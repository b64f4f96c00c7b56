// Package server exposes the validation workflow over an HTTP JSON API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"trade-validation-service/internal/ocr"
	"trade-validation-service/internal/parsers"
	"trade-validation-service/internal/pipeline"
	"trade-validation-service/internal/store"
	"trade-validation-service/pkg/logger"
)

// Config holds HTTP server settings.
type Config struct {
	Host           string
	Port           int
	UploadDir      string
	MaxUploadBytes int64
	CORSOrigins    []string
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:           "0.0.0.0",
		Port:           8000,
		UploadDir:      "data/uploads",
		MaxUploadBytes: 20 << 20,
		CORSOrigins:    []string{"*"},
	}
}

// Server serves the validation API.
type Server struct {
	config   *Config
	store    *store.Store
	pipeline *pipeline.Pipeline
	ocr      *ocr.Client
	parser   *parsers.TradeParser
	logger   logger.Logger
	http     *http.Server
}

// NewServer creates the API server over the given collaborators.
func NewServer(config *Config, recordStore *store.Store, p *pipeline.Pipeline, ocrClient *ocr.Client) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	s := &Server{
		config:   config,
		store:    recordStore,
		pipeline: p,
		ocr:      ocrClient,
		parser:   parsers.NewTradeParser(),
		logger:   logger.WithComponent("server"),
	}
	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}
	return s
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/schema/trs", s.handleSchema)

		r.Route("/trades", func(r chi.Router) {
			r.Get("/trs", s.handleListTrades)
			r.Post("/trs", s.handleCreateTrade)
			r.Get("/trs/{id}", s.handleGetTrade)
			r.Put("/trs/{id}", s.handleUpdateTrade)
			r.Delete("/trs/{id}", s.handleDeleteTrade)
			r.Post("/import", s.handleImportTrades)
		})

		r.Route("/documents", func(r chi.Router) {
			r.Get("/", s.handleListDocuments)
			r.Post("/upload", s.handleUploadDocument)
			r.Post("/text", s.handleTextDocument)
			r.Post("/scan-folder", s.handleScanFolder)
			r.Get("/{id}", s.handleGetDocument)
			r.Post("/{id}/extract", s.handleExtractDocument)
			r.Post("/{id}/validate", s.handleValidateDocument)
			r.Get("/{id}/viewer", s.handleDocumentViewer)
		})

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", s.handleGetRules)
			r.Put("/", s.handleReplaceRules)
		})

		r.Route("/validations", func(r chi.Router) {
			r.Get("/", s.handleListValidations)
			r.Get("/report", s.handleValidationReport)
			r.Get("/{id}", s.handleGetValidation)
			r.Post("/{id}/checker", s.handleCheckerAction)
		})
	})

	return r
}

// Start begins serving and blocks until the listener stops.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.http.Addr).Info("Starting API server")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
