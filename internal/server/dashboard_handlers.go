package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/epiwatch/epiwatch/internal/clients/epidata"
	"github.com/epiwatch/epiwatch/internal/config"
	"github.com/epiwatch/epiwatch/internal/database"
	"github.com/epiwatch/epiwatch/internal/modules/reports"
	"github.com/epiwatch/epiwatch/internal/orchestrator"
)

// assembleLookback is the default analysis window when the request carries no
// date range.
const assembleLookback = 90 * 24 * time.Hour

// DashboardHandlers serves the dashboard assembly endpoints.
type DashboardHandlers struct {
	orch       *orchestrator.Orchestrator
	reportRepo *reports.Repository
	cfg        *config.Config
	alertsDB   *database.DB
	log        zerolog.Logger
}

// NewDashboardHandlers creates dashboard handlers.
func NewDashboardHandlers(
	orch *orchestrator.Orchestrator,
	reportRepo *reports.Repository,
	cfg *config.Config,
	alertsDB *database.DB,
	log zerolog.Logger,
) *DashboardHandlers {
	return &DashboardHandlers{
		orch:       orch,
		reportRepo: reportRepo,
		cfg:        cfg,
		alertsDB:   alertsDB,
		log:        log.With().Str("handler", "dashboard").Logger(),
	}
}

// assembleRequest is the POST /api/dashboard/assemble body.
type assembleRequest struct {
	StartDate     string   `json:"start_date"`
	EndDate       string   `json:"end_date"`
	GeoType       string   `json:"geo_type"`
	GeoValues     []string `json:"geo_values"`
	FocusSignals  []string `json:"focus_signals"`
	MaxIterations int      `json:"max_iterations"`
}

// HandleAssemble handles POST /api/dashboard/assemble
func (h *DashboardHandlers) HandleAssemble(w http.ResponseWriter, r *http.Request) {
	var body assembleRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	req := h.buildRequest(body)
	report := h.orch.Run(r.Context(), req)

	if id, err := h.reportRepo.Save(report); err != nil {
		h.log.Error().Err(err).Msg("Failed to persist report")
	} else {
		h.log.Info().Str("report_id", id).Bool("success", report.Success).Msg("Dashboard assembled")
	}

	status := http.StatusOK
	if !report.Success {
		status = http.StatusBadGateway
	}
	h.writeJSON(w, status, report)
}

// buildRequest fills in configured defaults for everything the caller left
// unset: all cataloged signals, the default geography, a 90 day window.
func (h *DashboardHandlers) buildRequest(body assembleRequest) orchestrator.Request {
	signals := body.FocusSignals
	if len(signals) == 0 {
		signals = epidata.AvailableSignals()
	}

	end := body.EndDate
	start := body.StartDate
	if end == "" {
		end = time.Now().UTC().Format("20060102")
	}
	if start == "" {
		endDate, err := time.Parse("20060102", end)
		if err != nil {
			endDate = time.Now().UTC()
		}
		start = endDate.Add(-assembleLookback).Format("20060102")
	}

	geoType := body.GeoType
	geoValues := body.GeoValues
	if geoType == "" {
		geoType = h.cfg.DefaultGeoType
		geoValues = h.cfg.DefaultGeoValues
	}

	return orchestrator.Request{
		Signals:       signals,
		StartDate:     start,
		EndDate:       end,
		TimeType:      "day",
		GeoType:       geoType,
		GeoValues:     geoValues,
		MaxIterations: body.MaxIterations,
	}
}

// HandleStatus handles GET /api/dashboard/status
func (h *DashboardHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := h.alertsDB.Conn().Ping(); err != nil {
		h.log.Warn().Err(err).Msg("Alert database unreachable")
		dbOK = false
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"components": map[string]interface{}{
			"database":     dbOK,
			"epidata":      h.cfg.EpidataBaseURL != "",
			"orchestrator": true,
		},
		"available_signals": epidata.AvailableSignals(),
		"timestamp":         time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *DashboardHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *DashboardHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
