// Package server provides the HTTP server and routing for the allocator.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	historicalhandlers "github.com/aristath/allocator/internal/modules/historical/handlers"
	optimizationhandlers "github.com/aristath/allocator/internal/modules/optimization/handlers"
	"github.com/aristath/allocator/internal/observability"
)

// requestTimeout bounds every API request except the websocket stream.
const requestTimeout = 60 * time.Second

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Port      int
	DevMode   bool
	DataDir   string
	Databases []DatabaseChecker
	Metrics   *observability.Metrics
	Prices    *historicalhandlers.Handler
	Optimizer *optimizationhandlers.Handler
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	port           int
	metrics        *observability.Metrics
	prices         *historicalhandlers.Handler
	optimizer      *optimizationhandlers.Handler
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		port:           cfg.Port,
		metrics:        cfg.Metrics,
		prices:         cfg.Prices,
		optimizer:      cfg.Optimizer,
		systemHandlers: NewSystemHandlers(cfg.Log, cfg.DataDir, cfg.Databases),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	// No WriteTimeout: it would cut long-lived websocket connections.
	// Plain API requests are bounded by the Timeout middleware instead.
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	if s.metrics != nil {
		s.router.Use(s.metrics.Middleware)
	}

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleRoot)
	s.router.Get("/health", s.handleHealth)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	s.router.Route("/api", func(r chi.Router) {
		// Websocket stream stays outside the timeout group
		if s.optimizer != nil {
			s.optimizer.RegisterStreamRoutes(r)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			r.Get("/system/status", s.systemHandlers.HandleSystemStatus)

			if s.prices != nil {
				s.prices.RegisterRoutes(r)
			}
			if s.optimizer != nil {
				s.optimizer.RegisterRoutes(r)
			}
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
