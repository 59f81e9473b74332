package orchestrator

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epiwatch/epiwatch/internal/config"
	"github.com/epiwatch/epiwatch/internal/domain"
)

// fakeSource serves synthetic series and records fetch order.
type fakeSource struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
	delay map[string]time.Duration
	flat  map[string]bool
}

func (f *fakeSource) FetchSignal(ctx context.Context, req domain.SignalRequest) (*domain.SignalSeries, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Signal)
	f.mu.Unlock()

	if d, ok := f.delay[req.Signal]; ok {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := f.fail[req.Signal]; ok {
		return nil, err
	}

	base := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]domain.TimeSeriesPoint, 20)
	for i := range points {
		value := 100.0
		if !f.flat[req.Signal] {
			value = 100 * math.Exp(0.05*float64(i))
		}
		points[i] = domain.TimeSeriesPoint{
			GeoValue:  "us",
			TimeValue: base.AddDate(0, 0, i),
			Value:     value,
		}
	}
	return &domain.SignalSeries{
		SignalName: req.Signal,
		GeoType:    "nation",
		GeoValues:  []string{"us"},
		Points:     points,
		FetchedAt:  time.Now(),
	}, nil
}

func (f *fakeSource) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testConfig() *config.Config {
	return &config.Config{
		Detector: config.DetectorConfig{
			WindowSize:      7,
			MinLogSlope:     0.01,
			Smoothing:       false,
			SmoothingWindow: 3,
		},
		Orchestrator: config.OrchestratorConfig{
			MaxIterations: 8,
			FetchTimeout:  5 * time.Second,
			FetchWorkers:  4,
		},
	}
}

func testRequest(signals ...string) Request {
	return Request{
		Signals:   signals,
		StartDate: "20210101",
		EndDate:   "20210120",
		TimeType:  "day",
		GeoType:   "nation",
	}
}

func TestRunHappyPath(t *testing.T) {
	source := &fakeSource{flat: map[string]bool{"smoothed_adj_cli": true}}
	orch := New(source, testConfig(), zerolog.Nop())

	report := orch.Run(context.Background(), testRequest(
		"smoothed_wcli", "smoothed_adj_cli", "confirmed_7dav_incidence_num"))

	require.True(t, report.Success)
	assert.Empty(t, report.Error)
	require.Len(t, report.RisingTrends, 3)

	// Evidence is appended in request order regardless of fetch completion.
	assert.Equal(t, "smoothed_wcli", report.RisingTrends[0].SignalName)
	assert.Equal(t, "smoothed_adj_cli", report.RisingTrends[1].SignalName)
	assert.Equal(t, "confirmed_7dav_incidence_num", report.RisingTrends[2].SignalName)

	assert.Equal(t, domain.RiskHigh, report.RisingTrends[0].RiskLevel)
	assert.Equal(t, domain.RiskLow, report.RisingTrends[1].RiskLevel)
	assert.Equal(t, domain.RiskHigh, report.RiskAssessment.OverallRiskLevel)

	assert.NotEmpty(t, report.Alerts)
	assert.NotEmpty(t, report.Recommendations)
	assert.Equal(t, domain.PriorityUrgent, report.Recommendations[0].Priority)
	assert.ElementsMatch(t, []string{"fetch_signal", "detect_rising_trend"}, report.ToolsUsed)
	assert.Len(t, report.EpidemiologicalSignals, 3)
	assert.NotZero(t, report.GenerationTimeSeconds)
	assert.NotEmpty(t, report.Timestamp)
}

func TestRunIterationBudget(t *testing.T) {
	source := &fakeSource{}
	cfg := testConfig()
	orch := New(source, cfg, zerolog.Nop(), WithPlanner(NewRulePlanner(1)))

	req := testRequest("smoothed_wcli", "smoothed_adj_cli", "confirmed_7dav_incidence_num",
		"confirmed_admissions_covid_1d", "smoothed_cli")
	req.MaxIterations = 2

	report := orch.Run(context.Background(), req)

	// Budget exhaustion triggers finalization, not failure.
	require.True(t, report.Success)
	assert.Len(t, report.RisingTrends, 2)
	assert.Equal(t, 2, source.fetchCount())
}

func TestRunPartialFailure(t *testing.T) {
	source := &fakeSource{
		fail: map[string]error{"smoothed_adj_cli": fmt.Errorf("epidata: connection refused")},
	}
	orch := New(source, testConfig(), zerolog.Nop())

	report := orch.Run(context.Background(), testRequest(
		"smoothed_wcli", "smoothed_adj_cli", "confirmed_7dav_incidence_num"))

	require.True(t, report.Success, "one failed signal must not fail the run")
	require.Len(t, report.RisingTrends, 3)

	failed := report.RisingTrends[1]
	assert.Equal(t, "smoothed_adj_cli", failed.SignalName)
	assert.Equal(t, domain.StatusError, failed.Status)
	assert.Equal(t, domain.RiskUnknown, failed.RiskLevel)

	// The failed signal never reaches the signal views.
	assert.Len(t, report.EpidemiologicalSignals, 2)
}

func TestRunAllFetchesFail(t *testing.T) {
	source := &fakeSource{
		fail: map[string]error{
			"smoothed_wcli":    fmt.Errorf("timeout"),
			"smoothed_adj_cli": fmt.Errorf("timeout"),
		},
	}
	orch := New(source, testConfig(), zerolog.Nop())

	report := orch.Run(context.Background(), testRequest("smoothed_wcli", "smoothed_adj_cli"))

	require.False(t, report.Success)
	assert.Equal(t, "no signals could be fetched", report.Error)
	assert.Equal(t, domain.RiskUnknown, report.RiskAssessment.OverallRiskLevel)
	// Partial evidence still appears in the failure report.
	assert.Len(t, report.RisingTrends, 2)
}

func TestRunNoSignalsRequested(t *testing.T) {
	orch := New(&fakeSource{}, testConfig(), zerolog.Nop())

	report := orch.Run(context.Background(), Request{})

	require.False(t, report.Success)
	assert.Equal(t, "no signals requested", report.Error)
}

func TestRunDeterministicOrderWithSlowFetch(t *testing.T) {
	// The first requested signal is the slowest; evidence order must still
	// follow request order, not completion order.
	source := &fakeSource{
		delay: map[string]time.Duration{"smoothed_wcli": 50 * time.Millisecond},
	}
	orch := New(source, testConfig(), zerolog.Nop())

	report := orch.Run(context.Background(), testRequest(
		"smoothed_wcli", "smoothed_adj_cli", "confirmed_7dav_incidence_num"))

	require.True(t, report.Success)
	require.Len(t, report.RisingTrends, 3)
	assert.Equal(t, "smoothed_wcli", report.RisingTrends[0].SignalName)
	assert.Equal(t, "smoothed_adj_cli", report.RisingTrends[1].SignalName)
}

func TestRunDeadlineForcesFinalization(t *testing.T) {
	source := &fakeSource{
		delay: map[string]time.Duration{
			"smoothed_adj_cli": 200 * time.Millisecond,
		},
	}
	cfg := testConfig()
	orch := New(source, cfg, zerolog.Nop(), WithPlanner(NewRulePlanner(1)))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	report := orch.Run(ctx, testRequest("smoothed_wcli", "smoothed_adj_cli", "smoothed_cli"))

	// The first signal completes before the deadline; the report carries it.
	require.NotNil(t, report)
	require.True(t, report.Success)
	assert.GreaterOrEqual(t, len(report.RisingTrends), 1)
	assert.Less(t, len(report.RisingTrends), 3)
}

func TestRunEmitsProgressEvents(t *testing.T) {
	var mu sync.Mutex
	var states []State
	orch := New(&fakeSource{}, testConfig(), zerolog.Nop(), WithProgress(func(ev ProgressEvent) {
		mu.Lock()
		states = append(states, ev.State)
		mu.Unlock()
	}))

	report := orch.Run(context.Background(), testRequest("smoothed_wcli"))
	require.True(t, report.Success)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, StateInit, states[0])
	assert.Contains(t, states, StatePlanning)
	assert.Contains(t, states, StateFetching)
	assert.Contains(t, states, StateAnalyzing)
	assert.Contains(t, states, StateFinalizing)
	assert.Equal(t, StateDone, states[len(states)-1])
}

func TestRunIdenticalInputsProduceIdenticalEvidence(t *testing.T) {
	run := func() *domain.DashboardReport {
		source := &fakeSource{flat: map[string]bool{"smoothed_cli": true}}
		orch := New(source, testConfig(), zerolog.Nop())
		return orch.Run(context.Background(), testRequest(
			"smoothed_wcli", "smoothed_cli", "confirmed_7dav_incidence_num"))
	}

	first := run()
	second := run()

	require.Equal(t, len(first.RisingTrends), len(second.RisingTrends))
	for i := range first.RisingTrends {
		assert.Equal(t, first.RisingTrends[i], second.RisingTrends[i])
	}
	require.Equal(t, len(first.Alerts), len(second.Alerts))
	for i := range first.Alerts {
		// IDs are random; everything else must match.
		assert.Equal(t, first.Alerts[i].Location, second.Alerts[i].Location)
		assert.Equal(t, first.Alerts[i].RiskScore, second.Alerts[i].RiskScore)
		assert.Equal(t, first.Alerts[i].RiskReason, second.Alerts[i].RiskReason)
	}
}

func TestRulePlannerBatches(t *testing.T) {
	planner := NewRulePlanner(2)

	action := planner.DecideNextAction(domain.EvidenceSummary{
		PendingSignals: []string{"a", "b", "c"},
	})
	require.Equal(t, domain.ActionFetchSignal, action.Type)
	assert.Equal(t, []string{"a", "b"}, action.Signals)

	action = planner.DecideNextAction(domain.EvidenceSummary{PendingSignals: []string{"c"}})
	require.Equal(t, domain.ActionFetchSignal, action.Type)
	assert.Equal(t, []string{"c"}, action.Signals)

	action = planner.DecideNextAction(domain.EvidenceSummary{})
	assert.Equal(t, domain.ActionFinalize, action.Type)
}

func TestFetchPoolOrdersResults(t *testing.T) {
	source := &fakeSource{
		delay: map[string]time.Duration{"slow": 30 * time.Millisecond},
		fail:  map[string]error{"bad": fmt.Errorf("boom")},
	}
	pool := newFetchPool(2, time.Second)

	requests := []domain.SignalRequest{
		{Signal: "slow"}, {Signal: "bad"}, {Signal: "fast"},
	}
	results := pool.FetchBatch(context.Background(), source, requests)

	require.Len(t, results, 3)
	assert.Equal(t, 0, results[0].index)
	require.NotNil(t, results[0].series)
	assert.Equal(t, "slow", results[0].series.SignalName)
	assert.Error(t, results[1].err)
	require.NotNil(t, results[2].series)
	assert.Equal(t, "fast", results[2].series.SignalName)
}
