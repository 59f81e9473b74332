// Package orchestrator drives the dashboard assembly state machine: a
// bounded loop of planning, fetching and analyzing that always terminates
// with exactly one DashboardReport.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/epiwatch/epiwatch/internal/config"
	"github.com/epiwatch/epiwatch/internal/domain"
	"github.com/epiwatch/epiwatch/internal/evidence"
	"github.com/epiwatch/epiwatch/internal/risk"
	"github.com/epiwatch/epiwatch/internal/trend"
)

// State labels the orchestration loop phases.
type State string

const (
	StateInit       State = "INIT"
	StatePlanning   State = "PLANNING"
	StateFetching   State = "FETCHING"
	StateAnalyzing  State = "ANALYZING"
	StateFinalizing State = "FINALIZING"
	StateDone       State = "DONE"
	StateError      State = "ERROR"
)

// Request describes one dashboard assembly run. Zero values fall back to
// configured defaults.
type Request struct {
	Signals       []string `json:"signals,omitempty"`
	StartDate     string   `json:"start_date,omitempty"` // YYYYMMDD
	EndDate       string   `json:"end_date,omitempty"`   // YYYYMMDD
	TimeType      string   `json:"time_type,omitempty"`
	GeoType       string   `json:"geo_type,omitempty"`
	GeoValues     []string `json:"geo_values,omitempty"`
	MaxIterations int      `json:"max_iterations,omitempty"`
}

// ProgressEvent is emitted on every state transition for live observers.
type ProgressEvent struct {
	State     State     `json:"state"`
	Iteration int       `json:"iteration"`
	Message   string    `json:"message"`
	Signals   []string  `json:"signals,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithPlanner swaps out the default rule-based planner.
func WithPlanner(p domain.Planner) Option {
	return func(o *Orchestrator) { o.planner = p }
}

// WithProgress registers a callback invoked on every state transition.
// The callback runs on the orchestration goroutine and must not block.
func WithProgress(fn func(ProgressEvent)) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// WithDisplayNames supplies a signal display-name lookup for report views.
func WithDisplayNames(fn func(string) string) Option {
	return func(o *Orchestrator) { o.displayName = fn }
}

// Orchestrator assembles dashboard reports. Safe for concurrent Run calls:
// all run state is local to Run.
type Orchestrator struct {
	source      domain.SignalSource
	detector    *trend.Detector
	classifier  *risk.Classifier
	aggregator  *evidence.Aggregator
	planner     domain.Planner
	pool        *fetchPool
	params      trend.Params
	maxIter     int
	runTimeout  time.Duration
	displayName func(string) string
	log         zerolog.Logger
	progress    func(ProgressEvent)
}

// New creates an orchestrator wired with the configured detector and
// orchestration defaults.
func New(source domain.SignalSource, cfg *config.Config, log zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		source:     source,
		detector:   trend.NewDetector(cfg.Detector.SmoothingWindow),
		classifier: risk.NewClassifier(0, 0),
		aggregator: evidence.NewAggregator(evidence.DefaultMinSignals),
		planner:    NewRulePlanner(DefaultBatchSize),
		pool:       newFetchPool(cfg.Orchestrator.FetchWorkers, cfg.Orchestrator.FetchTimeout),
		params: trend.Params{
			WindowSize:  cfg.Detector.WindowSize,
			MinLogSlope: cfg.Detector.MinLogSlope,
			Smoothing:   cfg.Detector.Smoothing,
		},
		maxIter:     cfg.Orchestrator.MaxIterations,
		runTimeout:  cfg.Orchestrator.RunTimeout,
		displayName: func(s string) string { return s },
		log:         log.With().Str("component", "orchestrator").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run carries the mutable state of one orchestration run.
type run struct {
	req       Request
	maxIter   int
	iteration int
	pending   []string
	evidence  []evidence.ClassifiedResult
	toolsUsed []string
	started   time.Time
}

// Run executes one full orchestration cycle and always returns a well-formed
// report: per-signal failures are folded into the evidence, and only the
// complete absence of usable data yields success=false. The context deadline
// (or the configured run timeout) forces finalization with partial evidence
// rather than dropping the run.
func (o *Orchestrator) Run(ctx context.Context, req Request) *domain.DashboardReport {
	if o.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.runTimeout)
		defer cancel()
	}

	r := &run{
		req:     req,
		maxIter: req.MaxIterations,
		started: time.Now(),
	}
	if r.maxIter <= 0 {
		r.maxIter = o.maxIter
	}
	r.pending = append(r.pending, req.Signals...)

	o.emit(r, StateInit, fmt.Sprintf("starting run over %d signal(s)", len(r.pending)), nil)
	o.log.Info().
		Int("signals", len(r.pending)).
		Int("max_iterations", r.maxIter).
		Msg("Starting dashboard orchestration")

	if len(r.pending) == 0 {
		return o.errorReport(r, "no signals requested")
	}

	for {
		if ctx.Err() != nil {
			o.log.Warn().Msg("Run deadline exceeded, finalizing with partial evidence")
			break
		}
		if r.iteration >= r.maxIter {
			o.log.Info().Int("iterations", r.iteration).Msg("Iteration budget exhausted")
			break
		}

		o.emit(r, StatePlanning, "deciding next action", nil)
		action := o.planner.DecideNextAction(o.summarize(r))
		if action.Type == domain.ActionFinalize || len(action.Signals) == 0 {
			break
		}

		o.emit(r, StateFetching, fmt.Sprintf("fetching %d signal(s)", len(action.Signals)), action.Signals)
		batch := o.fetchBatch(ctx, r, action.Signals)
		r.toolsUsed = append(r.toolsUsed, "fetch_signal")

		o.emit(r, StateAnalyzing, "analyzing fetched signals", action.Signals)
		o.analyzeBatch(r, action.Signals, batch)
		r.toolsUsed = append(r.toolsUsed, "detect_rising_trend")

		r.iteration++
	}

	return o.finalize(r)
}

// fetchBatch fetches the named signals concurrently and returns results in
// the order the signals were requested.
func (o *Orchestrator) fetchBatch(ctx context.Context, r *run, signals []string) []fetchResult {
	requests := make([]domain.SignalRequest, len(signals))
	for i, name := range signals {
		requests[i] = domain.SignalRequest{
			Signal:    name,
			TimeType:  r.req.TimeType,
			GeoType:   r.req.GeoType,
			GeoValues: r.req.GeoValues,
			StartTime: r.req.StartDate,
			EndTime:   r.req.EndDate,
		}
	}
	return o.pool.FetchBatch(ctx, o.source, requests)
}

// analyzeBatch runs trend detection and classification over one batch and
// appends the outcomes to the evidence in request order. A failed fetch is
// recorded as an error result for that signal and never aborts the run.
// A series that comes back without a recognizable name is recorded under the
// unknown_signal placeholder instead of being dropped.
func (o *Orchestrator) analyzeBatch(r *run, requested []string, batch []fetchResult) {
	for _, fetched := range batch {
		requestedName := domain.UnknownSignal
		if fetched.index >= 0 && fetched.index < len(requested) {
			requestedName = requested[fetched.index]
		}

		var item evidence.ClassifiedResult
		switch {
		case fetched.err != nil:
			o.log.Warn().Err(fetched.err).Str("signal", requestedName).Msg("Signal fetch failed")
			item.Result = domain.TrendAnalysisResult{
				SignalName: requestedName,
				Status:     domain.StatusError,
				Error:      fetched.err.Error(),
			}
		case fetched.series == nil || fetched.series.SignalName == "":
			item.Result = domain.TrendAnalysisResult{
				SignalName: domain.UnknownSignal,
				Status:     domain.StatusError,
				Error:      "fetch returned unidentifiable data",
			}
		default:
			item.Series = fetched.series
			item.Result = o.detector.Detect(fetched.series, o.params)
		}

		item.Classification = o.classifier.Classify(item.Result)
		r.evidence = append(r.evidence, item)
		r.pending = removeSignal(r.pending, requestedName)
	}
}

// summarize builds the planner's read-only view of the run.
func (o *Orchestrator) summarize(r *run) domain.EvidenceSummary {
	summary := domain.EvidenceSummary{
		Iteration:      r.iteration,
		MaxIterations:  r.maxIter,
		PendingSignals: append([]string(nil), r.pending...),
	}
	for _, e := range r.evidence {
		if e.Result.Status == domain.StatusSuccess {
			summary.AnalyzedSignals = append(summary.AnalyzedSignals, e.Result.SignalName)
		} else {
			summary.FailedSignals = append(summary.FailedSignals, e.Result.SignalName)
		}
		switch e.Classification.RiskLevel {
		case domain.RiskHigh:
			summary.HighRiskCount++
		case domain.RiskMedium:
			summary.MediumRiskCount++
		}
	}
	return summary
}

// finalize aggregates all accumulated evidence into the terminal report.
func (o *Orchestrator) finalize(r *run) *domain.DashboardReport {
	o.emit(r, StateFinalizing, "aggregating evidence", nil)

	fetched := 0
	for _, e := range r.evidence {
		if e.Series != nil {
			fetched++
		}
	}
	if fetched == 0 {
		return o.errorReport(r, "no signals could be fetched")
	}

	alerts, assessment := o.aggregator.Aggregate(r.evidence)
	report := &domain.DashboardReport{
		Success:                true,
		Alerts:                 alerts,
		RisingTrends:           o.trendViews(r),
		EpidemiologicalSignals: o.signalViews(r),
		RiskAssessment:         assessment,
		Recommendations:        evidence.BuildRecommendations(assessment, r.evidence),
		ToolsUsed:              uniqueStrings(r.toolsUsed),
		GenerationTimeSeconds:  time.Since(r.started).Seconds(),
		Timestamp:              time.Now().UTC().Format(time.RFC3339),
	}

	o.emit(r, StateDone, "report ready", nil)
	o.log.Info().
		Int("alerts", len(report.Alerts)).
		Str("overall_risk", string(assessment.OverallRiskLevel)).
		Float64("seconds", report.GenerationTimeSeconds).
		Msg("Dashboard orchestration complete")
	return report
}

// errorReport builds the terminal failure report, still carrying whatever
// partial evidence was gathered.
func (o *Orchestrator) errorReport(r *run, msg string) *domain.DashboardReport {
	o.emit(r, StateError, msg, nil)
	o.log.Error().Str("error", msg).Msg("Dashboard orchestration failed")

	_, assessment := o.aggregator.Aggregate(r.evidence)
	assessment.OverallRiskLevel = domain.RiskUnknown

	return &domain.DashboardReport{
		Success:                false,
		Alerts:                 []domain.Alert{},
		RisingTrends:           o.trendViews(r),
		EpidemiologicalSignals: o.signalViews(r),
		RiskAssessment:         assessment,
		Recommendations:        []domain.Recommendation{},
		ToolsUsed:              uniqueStrings(r.toolsUsed),
		GenerationTimeSeconds:  time.Since(r.started).Seconds(),
		Timestamp:              time.Now().UTC().Format(time.RFC3339),
		Error:                  msg,
	}
}

func (o *Orchestrator) trendViews(r *run) []domain.RisingTrendView {
	views := make([]domain.RisingTrendView, 0, len(r.evidence))
	for _, e := range r.evidence {
		views = append(views, domain.RisingTrendView{
			SignalName:   e.Result.SignalName,
			RisingCount:  len(e.Result.RisingPeriods),
			TotalPeriods: e.Result.TotalPeriods,
			RiskLevel:    e.Classification.RiskLevel,
			RisingRatio:  e.Classification.RisingRatio,
			Status:       e.Result.Status,
		})
	}
	return views
}

func (o *Orchestrator) signalViews(r *run) []domain.EpidemiologicalSignal {
	views := make([]domain.EpidemiologicalSignal, 0, len(r.evidence))
	for _, e := range r.evidence {
		if e.Series == nil {
			continue
		}
		view := domain.EpidemiologicalSignal{
			SignalName:      e.Series.SignalName,
			DisplayName:     o.displayName(e.Series.SignalName),
			GeographicAreas: e.Series.GeoValues,
			TrendDirection:  trend.DirectionFor(e.Series, e.Result),
			DataQuality:     dataQuality(e),
		}
		if n := len(e.Series.Points); n > 0 {
			view.CurrentValue = e.Series.Points[n-1].Value
		}
		views = append(views, view)
	}
	return views
}

func dataQuality(e evidence.ClassifiedResult) string {
	switch e.Result.Status {
	case domain.StatusSuccess:
		return "high"
	case domain.StatusInsufficientData:
		return "limited"
	default:
		return "unknown"
	}
}

func (o *Orchestrator) emit(r *run, state State, msg string, signals []string) {
	if o.progress == nil {
		return
	}
	o.progress(ProgressEvent{
		State:     state,
		Iteration: r.iteration,
		Message:   msg,
		Signals:   signals,
		Timestamp: time.Now().UTC(),
	})
}

func removeSignal(pending []string, name string) []string {
	for i, s := range pending {
		if s == name {
			return append(pending[:i], pending[i+1:]...)
		}
	}
	return pending
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
