// Package handlers provides HTTP handlers for stored dashboard reports.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/epiwatch/epiwatch/internal/modules/reports"
)

// Handler handles report HTTP requests
type Handler struct {
	repo *reports.Repository
	log  zerolog.Logger
}

// NewHandler creates a new report handler
func NewHandler(repo *reports.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "reports").Logger(),
	}
}

// HandleList handles GET /api/reports
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	summaries, err := h.repo.List(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list reports")
		h.writeError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}
	if summaries == nil {
		summaries = []reports.Summary{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"reports": summaries,
		"count":   len(summaries),
	})
}

// HandleLatest handles GET /api/reports/latest
func (h *Handler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	report, err := h.repo.Latest()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load latest report")
		h.writeError(w, http.StatusInternalServerError, "failed to load latest report")
		return
	}
	if report == nil {
		h.writeError(w, http.StatusNotFound, "no reports stored yet")
		return
	}

	h.writeJSON(w, http.StatusOK, report)
}

// HandleGet handles GET /api/reports/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	report, err := h.repo.Get(id)
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("Failed to load report")
		h.writeError(w, http.StatusInternalServerError, "failed to load report")
		return
	}
	if report == nil {
		h.writeError(w, http.StatusNotFound, "report not found")
		return
	}

	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
