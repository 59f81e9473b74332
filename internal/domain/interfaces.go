package domain

import "context"

// SignalRequest describes one fetch against the external time-series source.
// StartTime and EndTime use the YYYYMMDD format the Epidata API expects.
type SignalRequest struct {
	Signal    string   `json:"signal"`
	TimeType  string   `json:"time_type"` // "day" or "week"
	GeoType   string   `json:"geo_type"`  // "state", "county" or "nation"
	GeoValues []string `json:"geo_values,omitempty"`
	StartTime string   `json:"start_time"`
	EndTime   string   `json:"end_time"`
}

// SignalSource fetches epidemiological time series from an external provider.
// Implementations must be safe for concurrent use: the orchestrator fetches
// multiple signals in parallel within one cycle.
type SignalSource interface {
	FetchSignal(ctx context.Context, req SignalRequest) (*SignalSeries, error)
}

// ActionType discriminates planner decisions.
type ActionType string

const (
	ActionFetchSignal ActionType = "fetch_signal"
	ActionFinalize    ActionType = "finalize"
)

// Action is a single planner decision: fetch one or more signals next, or
// finalize with the evidence gathered so far.
type Action struct {
	Type    ActionType
	Signals []string // populated for ActionFetchSignal
}

// EvidenceSummary is the read-only view of accumulated evidence the planner
// decides from. The orchestrator enforces the iteration budget regardless of
// what the planner asks for.
type EvidenceSummary struct {
	Iteration       int
	MaxIterations   int
	PendingSignals  []string
	AnalyzedSignals []string
	FailedSignals   []string
	HighRiskCount   int
	MediumRiskCount int
}

// Planner decides the next orchestration action from the evidence so far.
// Implementations may be rule-based or backed by an external reasoning
// service; the orchestrator's state machine is deterministic either way.
type Planner interface {
	DecideNextAction(evidence EvidenceSummary) Action
}
