package alerts

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// alertColumns is the column list for the alerts table. Kept explicit so a
// schema change breaks loudly instead of silently shifting Scan targets.
const alertColumns = `id, name, description, severity, alert_type, risk_score, risk_reason,
location, state, county, latitude, longitude, affected_population, source, created_at`

// Repository handles alert database operations.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new alert repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "alerts").Logger(),
	}
}

// Create inserts an alert. An empty ID gets a fresh UUID; an empty CreatedAt
// gets the current time. Returns the stored record.
func (r *Repository) Create(rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt == "" {
		rec.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	_, err := r.db.Exec(`INSERT INTO alerts (`+alertColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, rec.Description, rec.Severity, rec.AlertType,
		rec.RiskScore, rec.RiskReason, rec.Location, rec.State, rec.County,
		rec.Latitude, rec.Longitude, rec.AffectedPopulation, rec.Source, rec.CreatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("failed to insert alert: %w", err)
	}
	return rec, nil
}

// Get returns one alert by ID, or nil when not found.
func (r *Repository) Get(id string) (*Record, error) {
	row := r.db.QueryRow("SELECT "+alertColumns+" FROM alerts WHERE id = ?", id)
	rec, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query alert: %w", err)
	}
	return &rec, nil
}

// GetByName returns one alert by its unique name, or nil when not found.
func (r *Repository) GetByName(name string) (*Record, error) {
	row := r.db.QueryRow("SELECT "+alertColumns+" FROM alerts WHERE name = ?", name)
	rec, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query alert by name: %w", err)
	}
	return &rec, nil
}

// List returns alerts matching the filter, newest first.
func (r *Repository) List(f Filter) ([]Record, error) {
	var conditions []string
	var args []interface{}

	if f.State != "" {
		conditions = append(conditions, "LOWER(state) = LOWER(?)")
		args = append(args, f.State)
	}
	if f.Severity != "" {
		conditions = append(conditions, "UPPER(severity) = UPPER(?)")
		args = append(args, f.Severity)
	}
	if f.AlertType != "" {
		conditions = append(conditions, "UPPER(alert_type) = UPPER(?)")
		args = append(args, f.AlertType)
	}
	if f.Since != "" {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, f.Since)
	}

	query := "SELECT " + alertColumns + " FROM alerts"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Delete removes an alert. Returns true when a row was deleted.
func (r *Repository) Delete(id string) (bool, error) {
	result, err := r.db.Exec("DELETE FROM alerts WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete alert: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Count returns the total number of stored alerts.
func (r *Repository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM alerts").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return n, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(s scanner) (Record, error) {
	var rec Record
	err := s.Scan(
		&rec.ID, &rec.Name, &rec.Description, &rec.Severity, &rec.AlertType,
		&rec.RiskScore, &rec.RiskReason, &rec.Location, &rec.State, &rec.County,
		&rec.Latitude, &rec.Longitude, &rec.AffectedPopulation, &rec.Source, &rec.CreatedAt)
	return rec, err
}
