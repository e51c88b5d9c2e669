// Package server exposes run history, artifacts and metrics over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/hairizuanbinnoorazman/rateloop/logger"
	"github.com/hairizuanbinnoorazman/rateloop/run"
	"github.com/hairizuanbinnoorazman/rateloop/storage"
)

// Config holds HTTP server configuration.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Basic auth on /api is enabled when PasswordHash is set.
	Username     string
	PasswordHash string
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Deps are the services the routes are served from.
type Deps struct {
	DB      *gorm.DB
	Runs    run.Store
	Storage storage.BlobStorage
	Metrics http.Handler
	Logger  logger.Logger
}

// NewRouter builds the route table.
func NewRouter(cfg Config, deps Deps) *mux.Router {
	router := mux.NewRouter()
	router.Use(LoggingMiddleware(deps.Logger))

	router.Handle("/health", NewHealthHandler(deps.DB)).Methods(http.MethodGet)
	if deps.Metrics != nil {
		router.Handle("/metrics", deps.Metrics).Methods(http.MethodGet)
	}

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	if cfg.PasswordHash != "" {
		apiRouter.Use(NewBasicAuthMiddleware(cfg.Username, cfg.PasswordHash, deps.Logger).Handler)
	}

	runHandler := NewRunHandler(deps.Runs, deps.Storage, deps.Logger)
	apiRouter.HandleFunc("/runs", runHandler.List).Methods(http.MethodGet)
	apiRouter.HandleFunc("/runs/{id}", runHandler.GetByID).Methods(http.MethodGet)
	apiRouter.HandleFunc("/runs/{id}/sessions", runHandler.ListSessions).Methods(http.MethodGet)
	apiRouter.HandleFunc("/runs/{id}/summary", runHandler.Summary).Methods(http.MethodGet)
	apiRouter.HandleFunc("/runs/{id}/artifacts", runHandler.Artifacts).Methods(http.MethodGet)

	return router
}

// Server is the HTTP server of the daemon.
type Server struct {
	httpServer *http.Server
	logger     logger.Logger
}

// New creates a server with the route table of NewRouter.
func New(cfg Config, deps Deps) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      NewRouter(cfg, deps),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger: deps.Logger,
	}
}

// Start serves in the background. Serve errors are logged.
func (s *Server) Start(ctx context.Context) {
	go func() {
		s.logger.Info(ctx, "server listening", map[string]interface{}{
			"address": s.httpServer.Addr,
		})
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(ctx, "server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	s.logger.Info(ctx, "server stopped", nil)
	return nil
}
