// Package server provides the HTTP server and routing for tunefolio.
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

	"github.com/aristath/tunefolio/internal/di"
	tradinghandlers "github.com/aristath/tunefolio/internal/modules/trading/handlers"
	"github.com/aristath/tunefolio/internal/scheduler"
)

// Version is set at build time with -ldflags "-X .../internal/server.Version=..."
var Version = "dev"

// Config holds server configuration
type Config struct {
	Log          zerolog.Logger
	Port         int
	DevMode      bool
	TradebookDir string
	Container    *di.Container    // DI container with all services
	Jobs         *di.JobInstances // Jobs exposed for manual triggering
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	port           int
	container      *di.Container
	systemHandlers *SystemHandlers
	tradeHandlers  *tradinghandlers.TradingHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	c := cfg.Container

	var backups BackupLister
	if c.BackupService != nil {
		backups = c.BackupService
	}
	var tokens tradinghandlers.AccessTokenSetter
	if c.KiteClient != nil {
		tokens = c.KiteClient
	}
	var jobs []scheduler.Job
	if cfg.Jobs != nil {
		jobs = cfg.Jobs.All()
	}

	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		port:      cfg.Port,
		container: c,
		systemHandlers: NewSystemHandlers(
			cfg.Log,
			c.Ledger,
			c.SQLiteDatabases(),
			c.Scheduler,
			c.SyncService,
			backups,
			jobs,
		),
		tradeHandlers: tradinghandlers.NewTradingHandlers(
			c.Ledger,
			c.ImportRuns,
			c.Importer,
			c.SyncService,
			tokens,
			c.PnLService,
			c.Reconciler,
			cfg.TradebookDir,
			cfg.Log,
		),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		s.systemHandlers.RegisterRoutes(r)
		s.tradeHandlers.RegisterRoutes(r)
	})
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
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
