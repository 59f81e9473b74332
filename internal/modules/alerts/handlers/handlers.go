// Package handlers provides HTTP handlers for alert record operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/epiwatch/epiwatch/internal/modules/alerts"
)

// Handler handles alert HTTP requests
type Handler struct {
	repo *alerts.Repository
	log  zerolog.Logger
}

// NewHandler creates a new alert handler
func NewHandler(repo *alerts.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "alerts").Logger(),
	}
}

// HandleList handles GET /api/alerts
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := alerts.Filter{
		State:     q.Get("state"),
		Severity:  q.Get("severity"),
		AlertType: q.Get("type"),
		Since:     q.Get("since"),
		Limit:     100,
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}

	records, err := h.repo.List(filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list alerts")
		h.writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	if records == nil {
		records = []alerts.Record{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": records,
		"count":  len(records),
	})
}

// HandleGet handles GET /api/alerts/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.repo.Get(id)
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("Failed to get alert")
		h.writeError(w, http.StatusInternalServerError, "failed to get alert")
		return
	}
	if rec == nil {
		h.writeError(w, http.StatusNotFound, "alert not found")
		return
	}

	h.writeJSON(w, http.StatusOK, rec)
}

// HandleCreate handles POST /api/alerts
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var rec alerts.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if rec.Name == "" {
		h.writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	existing, err := h.repo.GetByName(rec.Name)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to check alert name")
		h.writeError(w, http.StatusInternalServerError, "failed to create alert")
		return
	}
	if existing != nil {
		h.writeError(w, http.StatusBadRequest, "alert already exists")
		return
	}

	created, err := h.repo.Create(rec)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create alert")
		h.writeError(w, http.StatusInternalServerError, "failed to create alert")
		return
	}

	h.writeJSON(w, http.StatusCreated, created)
}

// HandleDelete handles DELETE /api/alerts/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	deleted, err := h.repo.Delete(id)
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("Failed to delete alert")
		h.writeError(w, http.StatusInternalServerError, "failed to delete alert")
		return
	}
	if !deleted {
		h.writeError(w, http.StatusNotFound, "alert not found")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
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
