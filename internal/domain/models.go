// Package domain contains the core data model for epidemiological surveillance.
// The domain layer is pure (no infrastructure dependencies): every other package
// depends on it, it depends on nothing but the standard library.
package domain

import (
	"fmt"
	"time"
)

// AnalysisStatus is the outcome of a trend analysis for one signal.
type AnalysisStatus string

const (
	StatusSuccess          AnalysisStatus = "success"
	StatusInsufficientData AnalysisStatus = "insufficient_data"
	StatusError            AnalysisStatus = "error"
)

// TrendDirection describes the latest movement of a signal.
type TrendDirection string

const (
	TrendRising  TrendDirection = "rising"
	TrendFalling TrendDirection = "falling"
	TrendStable  TrendDirection = "stable"
	TrendUnknown TrendDirection = "unknown"
)

// RiskLevel classifies how concerning a signal (or the overall situation) is.
type RiskLevel string

const (
	RiskHigh    RiskLevel = "high"
	RiskMedium  RiskLevel = "medium"
	RiskLow     RiskLevel = "low"
	RiskUnknown RiskLevel = "unknown"
)

// Rank orders risk levels for comparisons (high > medium > low > unknown).
func (r RiskLevel) Rank() int {
	switch r {
	case RiskHigh:
		return 3
	case RiskMedium:
		return 2
	case RiskLow:
		return 1
	default:
		return 0
	}
}

// Priority orders recommendations.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// UnknownSignal is the placeholder name recorded when tool output cannot be
// mapped back to a specific signal. Multiple results may carry this name in a
// single run; they are intentionally NOT merged (see evidence package).
const UnknownSignal = "unknown_signal"

// TimeSeriesPoint is a single observation of a signal in one geography.
// Immutable once fetched.
type TimeSeriesPoint struct {
	GeoValue   string    `json:"geo_value"`
	TimeValue  time.Time `json:"time_value"`
	Value      float64   `json:"value"`
	Stderr     *float64  `json:"stderr,omitempty"`
	SampleSize *int      `json:"sample_size,omitempty"`
}

// SignalSeries is an ordered sequence of observations for one signal, as
// returned by a single fetch. Points are ordered by TimeValue ascending with
// no duplicate timestamps; Validate enforces this. Read-only downstream.
type SignalSeries struct {
	SignalName string            `json:"signal_name"`
	GeoType    string            `json:"geo_type"`
	GeoValues  []string          `json:"geo_values"`
	Points     []TimeSeriesPoint `json:"points"`
	FetchedAt  time.Time         `json:"fetched_at"`
}

// Validate checks the series ordering invariant: timestamps strictly
// ascending (which also rules out duplicates).
func (s *SignalSeries) Validate() error {
	for i := 1; i < len(s.Points); i++ {
		prev, cur := s.Points[i-1].TimeValue, s.Points[i].TimeValue
		if cur.Equal(prev) {
			return fmt.Errorf("duplicate timestamp %s in series %s", cur.Format("2006-01-02"), s.SignalName)
		}
		if cur.Before(prev) {
			return fmt.Errorf("non-monotonic timestamps in series %s: %s before %s",
				s.SignalName, cur.Format("2006-01-02"), prev.Format("2006-01-02"))
		}
	}
	return nil
}

// Values returns the observation values in series order.
func (s *SignalSeries) Values() []float64 {
	values := make([]float64, len(s.Points))
	for i, p := range s.Points {
		values[i] = p.Value
	}
	return values
}

// Dates returns the observation timestamps in series order.
func (s *SignalSeries) Dates() []time.Time {
	dates := make([]time.Time, len(s.Points))
	for i, p := range s.Points {
		dates[i] = p.TimeValue
	}
	return dates
}

// RisingPeriod is a maximal run of contiguous rising windows.
// Periods within one result are non-overlapping and ordered by Start.
type RisingPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// TrendAnalysisResult is the outcome of rolling trend detection for one signal
// in one orchestration cycle. Immutable once produced.
type TrendAnalysisResult struct {
	SignalName      string         `json:"signal_name"`
	RisingPeriods   []RisingPeriod `json:"rising_periods"`
	RisingWindows   int            `json:"rising_window_count"` // total windows inside rising periods
	TotalPeriods    int            `json:"total_periods"`       // windows evaluated
	SampleLogSlopes []float64      `json:"sample_log_slopes"`
	Status          AnalysisStatus `json:"status"`
	Error           string         `json:"error,omitempty"`
}

// RisingRatio is the share of evaluated windows that fell inside rising
// periods. It is the basis for risk classification.
func (r TrendAnalysisResult) RisingRatio() float64 {
	total := r.TotalPeriods
	if total < 1 {
		total = 1
	}
	return float64(r.RisingWindows) / float64(total)
}

// EpidemiologicalSignal is the denormalized per-signal view included in a
// dashboard report: series metadata joined with the latest analysis.
type EpidemiologicalSignal struct {
	SignalName      string         `json:"signal_name"`
	DisplayName     string         `json:"display_name"`
	GeographicAreas []string       `json:"geographic_areas"`
	CurrentValue    float64        `json:"current_value"`
	TrendDirection  TrendDirection `json:"trend_direction"`
	DataQuality     string         `json:"data_quality"`
}

// RiskAssessment is the overall situational risk picture, recomputed each run
// from the full set of trend analysis results.
type RiskAssessment struct {
	OverallRiskLevel       RiskLevel `json:"overall_risk_level"`
	ConfidenceLevel        string    `json:"confidence_level"`
	KeyRiskFactors         []string  `json:"key_risk_factors"`
	GeographicDistribution string    `json:"geographic_distribution"`
	TrendTrajectory        string    `json:"trend_trajectory"`
}

// Alert is a synthesized evidence object tied to a geography.
// Immutable once emitted.
type Alert struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	RiskScore   int     `json:"risk_score"` // 1..10
	RiskReason  string  `json:"risk_reason"`
	Location    string  `json:"location"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// Recommendation is an actionable follow-up derived from the risk assessment.
type Recommendation struct {
	Priority       Priority `json:"priority"`
	Action         string   `json:"action"`
	TargetAudience string   `json:"target_audience"`
	Timeframe      string   `json:"timeframe"`
}

// RisingTrendView is the report-facing summary of one trend analysis.
type RisingTrendView struct {
	SignalName   string         `json:"signal_name"`
	RisingCount  int            `json:"rising_periods"`
	TotalPeriods int            `json:"total_periods"`
	RiskLevel    RiskLevel      `json:"risk_level"`
	RisingRatio  float64        `json:"rising_ratio"`
	Status       AnalysisStatus `json:"status"`
}

// DashboardReport is the terminal aggregate of one orchestration run.
// Exactly one is produced per run, on success or on terminal failure.
type DashboardReport struct {
	Success                bool                    `json:"success"`
	Alerts                 []Alert                 `json:"alerts"`
	RisingTrends           []RisingTrendView       `json:"rising_trends"`
	EpidemiologicalSignals []EpidemiologicalSignal `json:"epidemiological_signals"`
	RiskAssessment         RiskAssessment          `json:"risk_assessment"`
	Recommendations        []Recommendation        `json:"recommendations"`
	ToolsUsed              []string                `json:"tools_used"`
	GenerationTimeSeconds  float64                 `json:"generation_time_seconds"`
	Timestamp              string                  `json:"timestamp"`
	Error                  string                  `json:"error,omitempty"`
}
