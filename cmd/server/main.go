// Package main is the entry point for the EpiWatch epidemiological
// surveillance service. It assembles public health dashboards from Delphi
// COVIDcast signals: rising-trend detection, risk classification, alert
// synthesis and recommendations, exposed over a REST API and refreshed by a
// scheduled surveillance job.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/epiwatch/epiwatch/internal/clientdata"
	"github.com/epiwatch/epiwatch/internal/clients/epidata"
	"github.com/epiwatch/epiwatch/internal/config"
	"github.com/epiwatch/epiwatch/internal/database"
	"github.com/epiwatch/epiwatch/internal/jobs"
	"github.com/epiwatch/epiwatch/internal/modules/alerts"
	"github.com/epiwatch/epiwatch/internal/modules/reports"
	"github.com/epiwatch/epiwatch/internal/orchestrator"
	"github.com/epiwatch/epiwatch/internal/scheduler"
	"github.com/epiwatch/epiwatch/internal/server"
	"github.com/epiwatch/epiwatch/pkg/logger"
)

// cleanupSchedule controls how often stale cached Epidata series are purged.
const cleanupSchedule = "0 0 * * * *" // hourly

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting EpiWatch")

	// Three databases: alerts (alert records), reports (dashboard run
	// history) and client_data (ephemeral Epidata response cache).
	alertsDB, err := database.New(database.Config{
		Path: filepath.Join(cfg.DataDir, "alerts.db"),
		Name: "alerts",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open alerts database")
	}
	defer alertsDB.Close()

	reportsDB, err := database.New(database.Config{
		Path: filepath.Join(cfg.DataDir, "reports.db"),
		Name: "reports",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open reports database")
	}
	defer reportsDB.Close()

	clientDataDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "client_data.db"),
		Profile: database.ProfileCache,
		Name:    "client_data",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open client data database")
	}
	defer clientDataDB.Close()

	for _, db := range []*database.DB{alertsDB, reportsDB, clientDataDB} {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", db.Name()).Msg("Failed to apply schema")
		}
	}

	// Epidata client with a SQLite-backed response cache.
	cacheRepo := clientdata.NewRepository(clientDataDB.Conn())
	epidataClient := epidata.NewClient(cfg.EpidataBaseURL, cacheRepo, log)

	progressHub := server.NewProgressHub(log)

	orch := orchestrator.New(epidataClient, cfg, log,
		orchestrator.WithDisplayNames(epidata.DisplayName),
		orchestrator.WithProgress(progressHub.Broadcast),
	)

	alertRepo := alerts.NewRepository(alertsDB.Conn(), log)
	reportRepo := reports.NewRepository(reportsDB.Conn(), log)

	if err := alertRepo.Seed(); err != nil {
		log.Warn().Err(err).Msg("Failed to seed baseline alerts")
	}

	surveillanceJob := jobs.NewSurveillanceJob(orch, reportRepo, alertRepo, cfg, log)

	sched := scheduler.New(log)
	if cfg.SurveillanceEnabled {
		if err := sched.AddJob(cfg.SurveillanceSchedule, surveillanceJob); err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule surveillance job")
		}
	}
	if err := sched.AddJob(cleanupSchedule, clientdata.NewCleanupJob(cacheRepo, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule cache cleanup job")
	}
	sched.Start()

	srv := server.New(server.Config{
		Log:          log,
		Config:       cfg,
		AlertsDB:     alertsDB,
		ReportsDB:    reportsDB,
		EpidataCl:    epidataClient,
		Orchestrator: orch,
		AlertRepo:    alertRepo,
		ReportRepo:   reportRepo,
		ProgressHub:  progressHub,
		Scheduler:    sched,
	})
	srv.SetSurveillanceJob(surveillanceJob)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
