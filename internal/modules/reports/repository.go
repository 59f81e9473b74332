// Package reports persists dashboard reports so runs can be reviewed later.
package reports

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/epiwatch/epiwatch/internal/domain"
)

// Summary is the lightweight listing view of a stored report. The full
// report payload is only decoded on demand.
type Summary struct {
	ID                    string  `json:"id"`
	Success               bool    `json:"success"`
	OverallRiskLevel      string  `json:"overall_risk_level"`
	AlertCount            int     `json:"alert_count"`
	SignalCount           int     `json:"signal_count"`
	GenerationTimeSeconds float64 `json:"generation_time_seconds"`
	CreatedAt             string  `json:"created_at"`
}

// Repository handles report database operations. Full reports are stored as
// msgpack blobs next to queryable summary columns.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new report repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "reports").Logger(),
	}
}

// Save stores a report and returns its assigned ID.
func (r *Repository) Save(report *domain.DashboardReport) (string, error) {
	payload, err := msgpack.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	id := uuid.NewString()
	_, err = r.db.Exec(`INSERT INTO reports
		(id, success, overall_risk_level, alert_count, signal_count, generation_time_seconds, created_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		report.Success,
		string(report.RiskAssessment.OverallRiskLevel),
		len(report.Alerts),
		len(report.EpidemiologicalSignals),
		report.GenerationTimeSeconds,
		time.Now().UTC().Format(time.RFC3339),
		payload)
	if err != nil {
		return "", fmt.Errorf("failed to insert report: %w", err)
	}

	r.log.Debug().Str("id", id).Msg("Stored dashboard report")
	return id, nil
}

// Get returns a full report by ID, or nil when not found.
func (r *Repository) Get(id string) (*domain.DashboardReport, error) {
	var payload []byte
	err := r.db.QueryRow("SELECT payload FROM reports WHERE id = ?", id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query report: %w", err)
	}
	return decodeReport(payload)
}

// Latest returns the most recently stored report, or nil when the store is
// empty.
func (r *Repository) Latest() (*domain.DashboardReport, error) {
	var payload []byte
	err := r.db.QueryRow("SELECT payload FROM reports ORDER BY created_at DESC, rowid DESC LIMIT 1").Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest report: %w", err)
	}
	return decodeReport(payload)
}

// List returns summaries of the most recent reports, newest first.
func (r *Repository) List(limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(`SELECT id, success, overall_risk_level, alert_count,
		signal_count, generation_time_seconds, created_at
		FROM reports ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.Success, &s.OverallRiskLevel, &s.AlertCount,
			&s.SignalCount, &s.GenerationTimeSeconds, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan report summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// DeleteOlderThan removes reports created before the cutoff. Returns the
// number of rows removed.
func (r *Repository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec("DELETE FROM reports WHERE created_at < ?",
		cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to prune reports: %w", err)
	}
	return result.RowsAffected()
}

func decodeReport(payload []byte) (*domain.DashboardReport, error) {
	var report domain.DashboardReport
	if err := msgpack.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &report, nil
}
