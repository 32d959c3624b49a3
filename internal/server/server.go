// Package server provides the HTTP API for predictions, stats and system status.
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

	"github.com/aristath/augur/internal/backtest"
	"github.com/aristath/augur/internal/database"
	"github.com/aristath/augur/internal/domain"
	"github.com/aristath/augur/internal/engine"
	"github.com/aristath/augur/internal/events"
	"github.com/aristath/augur/internal/scheduler"
)

// Engine is the prediction surface the API serves
type Engine interface {
	PredictDouble(ctx context.Context) (domain.DoublePrediction, error)
	PredictMines(ctx context.Context) (domain.MinesPrediction, error)
	Backtest(ctx context.Context, game domain.Game) (backtest.Result, error)
	Stats() map[domain.Game]domain.StatsRecord
	StatsFor(game domain.Game) (domain.StatsRecord, error)
	DoubleHistory(n int) []domain.DoubleOutcome
	MinesHistory(n int) []domain.MinesOutcome
	Status() engine.Status
}

// JobLister reports scheduled jobs
type JobLister interface {
	Status() []scheduler.JobStatus
}

// Config holds server configuration
type Config struct {
	Log     zerolog.Logger
	Engine  Engine
	Jobs    JobLister    // optional
	Bus     *events.Bus  // optional, enables the event stream
	CacheDB *database.DB // optional, reported in system status
	Metrics http.Handler // optional, served at /metrics
	Port    int
	DevMode bool
}

// Server represents the HTTP server
type Server struct {
	router  *chi.Mux
	server  *http.Server
	log     zerolog.Logger
	engine  Engine
	jobs    JobLister
	bus     *events.Bus
	cacheDB *database.DB
	metrics http.Handler
	port    int
	system  *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	log := cfg.Log.With().Str("component", "server").Logger()

	s := &Server{
		router:  chi.NewRouter(),
		log:     log,
		engine:  cfg.Engine,
		jobs:    cfg.Jobs,
		bus:     cfg.Bus,
		cacheDB: cfg.CacheDB,
		metrics: cfg.Metrics,
		port:    cfg.Port,
		system:  NewSystemHandlers(cfg.Engine, cfg.Jobs, cfg.CacheDB, log),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // the event stream is long-lived
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5, "application/json"))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics)
	}

	s.router.Route("/api", func(r chi.Router) {
		if s.bus != nil {
			r.Get("/events/stream", NewEventsStreamHandler(s.bus, s.log).ServeHTTP)
		}

		// Everything except the stream gets a request timeout
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Route("/predictions", func(r chi.Router) {
				r.Get("/double", s.handlePredictDouble)
				r.Get("/mines", s.handlePredictMines)
			})

			r.Post("/backtest/{game}", s.handleBacktest)

			r.Route("/stats", func(r chi.Router) {
				r.Get("/", s.handleStats)
				r.Get("/{game}", s.handleGameStats)
			})

			r.Get("/history/{game}", s.handleHistory)

			r.Route("/system", func(r chi.Router) {
				r.Get("/status", s.system.HandleSystemStatus)
				r.Get("/jobs", s.system.HandleJobsStatus)
				r.Get("/database/stats", s.system.HandleDatabaseStats)
			})
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
