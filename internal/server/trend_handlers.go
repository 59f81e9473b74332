package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/epiwatch/epiwatch/internal/clients/epidata"
	"github.com/epiwatch/epiwatch/internal/config"
	"github.com/epiwatch/epiwatch/internal/domain"
	"github.com/epiwatch/epiwatch/internal/risk"
	"github.com/epiwatch/epiwatch/internal/trend"
)

// TrendHandlers serves single-signal trend queries.
type TrendHandlers struct {
	client     *epidata.Client
	detector   *trend.Detector
	classifier *risk.Classifier
	cfg        *config.Config
	log        zerolog.Logger
}

// NewTrendHandlers creates trend handlers.
func NewTrendHandlers(client *epidata.Client, cfg *config.Config, log zerolog.Logger) *TrendHandlers {
	return &TrendHandlers{
		client:     client,
		detector:   trend.NewDetector(cfg.Detector.SmoothingWindow),
		classifier: risk.NewClassifier(0, 0),
		cfg:        cfg,
		log:        log.With().Str("handler", "trends").Logger(),
	}
}

// HandleGetTrend handles GET /api/trends/{signal}
//
// Query parameters override the configured detector defaults:
// window_size, min_log_slope, smoothing, start_date, end_date, geo_type,
// geo_value.
func (h *TrendHandlers) HandleGetTrend(w http.ResponseWriter, r *http.Request) {
	signal := chi.URLParam(r, "signal")
	if _, err := epidata.LookupSignal(signal); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()

	params := trend.Params{
		WindowSize:  h.cfg.Detector.WindowSize,
		MinLogSlope: h.cfg.Detector.MinLogSlope,
		Smoothing:   h.cfg.Detector.Smoothing,
	}
	if raw := q.Get("window_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 2 {
			h.writeError(w, http.StatusBadRequest, "invalid window_size")
			return
		}
		params.WindowSize = n
	}
	if raw := q.Get("min_log_slope"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid min_log_slope")
			return
		}
		params.MinLogSlope = f
	}
	if raw := q.Get("smoothing"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid smoothing")
			return
		}
		params.Smoothing = b
	}

	end := q.Get("end_date")
	if end == "" {
		end = time.Now().UTC().Format("20060102")
	}
	start := q.Get("start_date")
	if start == "" {
		endDate, err := time.Parse("20060102", end)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid end_date")
			return
		}
		start = endDate.Add(-assembleLookback).Format("20060102")
	}

	geoType := q.Get("geo_type")
	var geoValues []string
	if geoType == "" {
		geoType = h.cfg.DefaultGeoType
		geoValues = h.cfg.DefaultGeoValues
	} else if gv := q.Get("geo_value"); gv != "" {
		geoValues = []string{gv}
	}

	series, err := h.client.FetchSignal(r.Context(), domain.SignalRequest{
		Signal:    signal,
		TimeType:  "day",
		GeoType:   geoType,
		GeoValues: geoValues,
		StartTime: start,
		EndTime:   end,
	})
	if err != nil {
		h.log.Warn().Err(err).Str("signal", signal).Msg("Trend fetch failed")
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	result := h.detector.Detect(series, params)
	classification := h.classifier.Classify(result)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"signal_name":     signal,
		"display_name":    epidata.DisplayName(signal),
		"analysis":        result,
		"risk_level":      classification.RiskLevel,
		"rising_ratio":    classification.RisingRatio,
		"trend_direction": trend.DirectionFor(series, result),
	})
}

func (h *TrendHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *TrendHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
