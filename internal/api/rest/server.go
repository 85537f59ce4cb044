package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Server represents the REST API server
type Server struct {
	port   string
	server *http.Server
	logger *zap.Logger
}

// NewServer creates a new REST API server. jobs may be nil, in which case
// the scrape routes are not registered.
func NewServer(port string, handler *Handler, jobs JobService, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{
		port:   port,
		logger: logger,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%s", port),
			Handler:           NewRouter(handler, jobs, logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// NewRouter builds the route table.
func NewRouter(handler *Handler, jobs JobService, logger *zap.Logger) http.Handler {
	router := mux.NewRouter()

	router.Use(RecoveryMiddleware(logger))
	router.Use(LoggingMiddleware(logger))

	// Health check
	router.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()

	// Players
	api.HandleFunc("/players", handler.ListPlayers).Methods("GET")
	api.HandleFunc("/players/search", handler.SearchPlayers).Methods("GET")
	api.HandleFunc("/players/{playerID}", handler.GetPlayer).Methods("GET")
	api.HandleFunc("/players/{playerID}/stats", handler.GetPlayerStats).Methods("GET")

	// Scrape jobs
	if jobs != nil {
		scrapeHandler := NewScrapeHandler(jobs)
		api.HandleFunc("/scrape", scrapeHandler.HandleScrapeRequest).Methods("POST")
		api.HandleFunc("/scrape/status", scrapeHandler.HandleScrapeStatus).Methods("GET")
	}

	return CORSMiddleware(router)
}

// Start starts the REST API server
func (s *Server) Start() error {
	s.logger.Info("REST API listening", zap.String("port", s.port))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
