package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/epiwatch/epiwatch/internal/config"
	"github.com/epiwatch/epiwatch/internal/database"
	"github.com/epiwatch/epiwatch/internal/scheduler"
)

// SystemHandlers serves system-wide monitoring and job trigger endpoints.
type SystemHandlers struct {
	log         zerolog.Logger
	cfg         *config.Config
	startupTime time.Time
	alertsDB    *database.DB
	reportsDB   *database.DB
	sched       *scheduler.Scheduler

	// Set after job registration in main.go.
	surveillanceJob scheduler.Job
}

// NewSystemHandlers creates a new system handlers instance.
func NewSystemHandlers(log zerolog.Logger, cfg *config.Config, alertsDB, reportsDB *database.DB, sched *scheduler.Scheduler) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		cfg:         cfg,
		startupTime: time.Now(),
		alertsDB:    alertsDB,
		reportsDB:   reportsDB,
		sched:       sched,
	}
}

// SetSurveillanceJob registers the surveillance job for manual triggering.
func (h *SystemHandlers) SetSurveillanceJob(job scheduler.Job) {
	h.surveillanceJob = job
}

// HandleSystemHealth returns process uptime, resource usage and database
// health. GET /api/system/health
func (h *SystemHandlers) HandleSystemHealth(w http.ResponseWriter, r *http.Request) {
	cpuPercent, ramPercent := h.getSystemStats()

	databases := map[string]bool{}
	healthy := true
	for name, db := range map[string]*database.DB{
		"alerts":  h.alertsDB,
		"reports": h.reportsDB,
	} {
		ok := db != nil && db.Conn().Ping() == nil
		databases[name] = ok
		if !ok {
			healthy = false
		}
	}

	status := "healthy"
	if !healthy {
		status = "degraded"
	}

	h.writeJSON(w, map[string]interface{}{
		"status":       status,
		"uptime_hours": time.Since(h.startupTime).Hours(),
		"cpu_percent":  cpuPercent,
		"ram_percent":  ramPercent,
		"databases":    databases,
		"timestamp":    time.Now().Format(time.RFC3339),
	})
}

// getSystemStats calculates CPU and RAM usage percentages.
// Uses a 100ms sampling interval to keep the endpoint responsive.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

// HandleTriggerSurveillance runs the surveillance job immediately.
// POST /api/system/jobs/surveillance/run
func (h *SystemHandlers) HandleTriggerSurveillance(w http.ResponseWriter, r *http.Request) {
	if h.surveillanceJob == nil {
		h.log.Warn().Msg("Surveillance job not registered yet")
		h.writeJSON(w, map[string]string{
			"status":  "error",
			"message": "Surveillance job not registered",
		})
		return
	}

	h.log.Info().Msg("Manual surveillance run triggered")

	if err := h.sched.RunNow(h.surveillanceJob); err != nil {
		h.log.Error().Err(err).Msg("Failed to trigger surveillance run")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, map[string]string{
		"status":  "success",
		"message": "Surveillance run triggered successfully",
	})
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
