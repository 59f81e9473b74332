// Package alerts stores and serves public health alert records.
package alerts

import "github.com/epiwatch/epiwatch/internal/domain"

// Record is a persisted alert. It extends the synthesized domain.Alert with
// the administrative fields the record store tracks.
type Record struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	Description        string  `json:"description"`
	Severity           string  `json:"severity"`   // LOW, MEDIUM, HIGH
	AlertType          string  `json:"alert_type"` // OUTBREAK, MONITORING, SURVEILLANCE, SEASONAL
	RiskScore          int     `json:"risk_score"`
	RiskReason         string  `json:"risk_reason"`
	Location           string  `json:"location"`
	State              string  `json:"state"`
	County             string  `json:"county"`
	Latitude           float64 `json:"latitude"`
	Longitude          float64 `json:"longitude"`
	AffectedPopulation int     `json:"affected_population"`
	Source             string  `json:"source"`
	CreatedAt          string  `json:"created_at"`
}

// Filter narrows List queries. Zero values match everything.
type Filter struct {
	State     string
	Severity  string
	AlertType string
	Since     string // RFC3339, inclusive
	Limit     int
}

// FromDomain converts a synthesized alert into a persistable record.
// Severity derives from the 1..10 risk score.
func FromDomain(a domain.Alert, source string) Record {
	severity := "LOW"
	switch {
	case a.RiskScore >= 7:
		severity = "HIGH"
	case a.RiskScore >= 4:
		severity = "MEDIUM"
	}
	return Record{
		ID:          a.ID,
		Name:        a.Name,
		Description: a.Description,
		Severity:    severity,
		AlertType:   "OUTBREAK",
		RiskScore:   a.RiskScore,
		RiskReason:  a.RiskReason,
		Location:    a.Location,
		Latitude:    a.Latitude,
		Longitude:   a.Longitude,
		Source:      source,
	}
}
