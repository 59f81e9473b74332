// Package server provides the HTTP server and routing for EpiWatch.
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

	"github.com/epiwatch/epiwatch/internal/clients/epidata"
	"github.com/epiwatch/epiwatch/internal/config"
	"github.com/epiwatch/epiwatch/internal/database"
	"github.com/epiwatch/epiwatch/internal/modules/alerts"
	alertshandlers "github.com/epiwatch/epiwatch/internal/modules/alerts/handlers"
	"github.com/epiwatch/epiwatch/internal/modules/reports"
	reportshandlers "github.com/epiwatch/epiwatch/internal/modules/reports/handlers"
	"github.com/epiwatch/epiwatch/internal/orchestrator"
	"github.com/epiwatch/epiwatch/internal/scheduler"
)

// Config holds server configuration
type Config struct {
	Log          zerolog.Logger
	Config       *config.Config
	AlertsDB     *database.DB
	ReportsDB    *database.DB
	EpidataCl    *epidata.Client
	Orchestrator *orchestrator.Orchestrator
	AlertRepo    *alerts.Repository
	ReportRepo   *reports.Repository
	ProgressHub  *ProgressHub
	Scheduler    *scheduler.Scheduler
}

// Server represents the HTTP server
type Server struct {
	router            *chi.Mux
	server            *http.Server
	log               zerolog.Logger
	cfg               *config.Config
	alertsDB          *database.DB
	reportsDB         *database.DB
	dashboardHandlers *DashboardHandlers
	trendHandlers     *TrendHandlers
	systemHandlers    *SystemHandlers
	alertHandler      *alertshandlers.Handler
	reportHandler     *reportshandlers.Handler
	progressHub       *ProgressHub
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		log:         cfg.Log.With().Str("component", "server").Logger(),
		cfg:         cfg.Config,
		alertsDB:    cfg.AlertsDB,
		reportsDB:   cfg.ReportsDB,
		progressHub: cfg.ProgressHub,
	}

	s.dashboardHandlers = NewDashboardHandlers(cfg.Orchestrator, cfg.ReportRepo, cfg.Config, cfg.AlertsDB, cfg.Log)
	s.trendHandlers = NewTrendHandlers(cfg.EpidataCl, cfg.Config, cfg.Log)
	s.systemHandlers = NewSystemHandlers(cfg.Log, cfg.Config, cfg.AlertsDB, cfg.ReportsDB, cfg.Scheduler)
	s.alertHandler = alertshandlers.NewHandler(cfg.AlertRepo, cfg.Log)
	s.reportHandler = reportshandlers.NewHandler(cfg.ReportRepo, cfg.Log)

	s.setupMiddleware(cfg.Config.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// SetSurveillanceJob registers the surveillance job for manual triggering
func (s *Server) SetSurveillanceJob(job scheduler.Job) {
	s.systemHandlers.SetSurveillanceJob(job)
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

	// Timeout
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
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
	// Health check
	s.router.Get("/health", s.handleHealth)

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		r.Route("/dashboard", func(r chi.Router) {
			r.Post("/assemble", s.dashboardHandlers.HandleAssemble)
			r.Get("/status", s.dashboardHandlers.HandleStatus)
			r.Get("/progress", s.progressHub.HandleProgress)
		})

		r.Route("/trends", func(r chi.Router) {
			r.Get("/{signal}", s.trendHandlers.HandleGetTrend)
		})

		r.Route("/system", func(r chi.Router) {
			r.Get("/health", s.systemHandlers.HandleSystemHealth)
			r.Post("/jobs/surveillance/run", s.systemHandlers.HandleTriggerSurveillance)
		})

		s.alertHandler.RegisterRoutes(r)
		s.reportHandler.RegisterRoutes(r)
	})
}

// handleHealth is the liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the configured router, mainly for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// loggingMiddleware logs all HTTP requests
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
