package evidence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epiwatch/epiwatch/internal/domain"
	"github.com/epiwatch/epiwatch/internal/risk"
)

func classified(signal string, level domain.RiskLevel, ratio float64, status domain.AnalysisStatus) ClassifiedResult {
	var series *domain.SignalSeries
	if status == domain.StatusSuccess {
		series = &domain.SignalSeries{
			SignalName: signal,
			GeoType:    "nation",
			GeoValues:  []string{"us"},
			FetchedAt:  time.Now(),
		}
	}
	rising := int(ratio * 100)
	return ClassifiedResult{
		Series: series,
		Result: domain.TrendAnalysisResult{
			SignalName:    signal,
			RisingWindows: rising,
			TotalPeriods:  100,
			Status:        status,
		},
		Classification: risk.Classification{RiskLevel: level, RisingRatio: ratio},
	}
}

func TestAggregateOverallRiskIsMaxObserved(t *testing.T) {
	agg := NewAggregator(1)

	results := []ClassifiedResult{
		classified("smoothed_wcli", domain.RiskLow, 0.1, domain.StatusSuccess),
		classified("confirmed_7dav_incidence_num", domain.RiskHigh, 0.9, domain.StatusSuccess),
		classified("smoothed_adj_cli", domain.RiskMedium, 0.5, domain.StatusSuccess),
	}

	_, assessment := agg.Aggregate(results)

	assert.Equal(t, domain.RiskHigh, assessment.OverallRiskLevel)
	assert.Equal(t, []string{"confirmed_7dav_incidence_num"}, assessment.KeyRiskFactors)
	assert.Equal(t, "high", assessment.ConfidenceLevel)
	assert.Equal(t, "rising", assessment.TrendTrajectory)
	assert.Equal(t, "national", assessment.GeographicDistribution)
}

func TestAggregateBelowMinSignalsIsUnknown(t *testing.T) {
	agg := NewAggregator(2)

	results := []ClassifiedResult{
		classified("smoothed_wcli", domain.RiskHigh, 0.8, domain.StatusSuccess),
	}

	_, assessment := agg.Aggregate(results)

	assert.Equal(t, domain.RiskUnknown, assessment.OverallRiskLevel)
	// High risk factors are still reported even when overall is withheld.
	assert.Equal(t, []string{"smoothed_wcli"}, assessment.KeyRiskFactors)
}

func TestAggregateEmptyEvidence(t *testing.T) {
	agg := NewAggregator(1)

	alerts, assessment := agg.Aggregate(nil)

	assert.Empty(t, alerts)
	assert.Equal(t, domain.RiskUnknown, assessment.OverallRiskLevel)
	assert.Equal(t, "medium", assessment.ConfidenceLevel)
	assert.Equal(t, "stable", assessment.TrendTrajectory)
	assert.Equal(t, "unknown", assessment.GeographicDistribution)
	assert.Empty(t, assessment.KeyRiskFactors)
}

func TestAggregateUnknownSignalRepeatsPreserved(t *testing.T) {
	agg := NewAggregator(1)

	// Two unparseable tool outputs recorded under the placeholder name. They
	// must stay separate entries, not merge into one.
	bad1 := ClassifiedResult{
		Result: domain.TrendAnalysisResult{
			SignalName: domain.UnknownSignal,
			Status:     domain.StatusError,
			Error:      "unparseable tool output",
		},
		Classification: risk.Classification{RiskLevel: domain.RiskUnknown},
	}
	bad2 := bad1
	good := classified("smoothed_wcli", domain.RiskHigh, 0.75, domain.StatusSuccess)

	// Force the placeholders into the high list to observe repeat handling.
	bad1.Classification.RiskLevel = domain.RiskHigh
	bad2.Classification.RiskLevel = domain.RiskHigh

	_, assessment := agg.Aggregate([]ClassifiedResult{bad1, good, bad2})

	assert.Equal(t, []string{domain.UnknownSignal, "smoothed_wcli", domain.UnknownSignal},
		assessment.KeyRiskFactors)
}

func TestSynthesizeAlertsGroupsByGeography(t *testing.T) {
	agg := NewAggregator(1)

	high := classified("confirmed_7dav_incidence_num", domain.RiskHigh, 0.82, domain.StatusSuccess)
	medium := classified("smoothed_adj_cli", domain.RiskMedium, 0.45, domain.StatusSuccess)
	low := classified("smoothed_wcli", domain.RiskLow, 0.1, domain.StatusSuccess)

	alerts, _ := agg.Aggregate([]ClassifiedResult{high, medium, low})

	require.Len(t, alerts, 1)
	alert := alerts[0]
	assert.NotEmpty(t, alert.ID)
	assert.Equal(t, "United States", alert.Location)
	assert.Equal(t, 8, alert.RiskScore) // round(0.82 * 10)
	assert.Contains(t, alert.RiskReason, "confirmed_7dav_incidence_num")
	assert.Contains(t, alert.RiskReason, "smoothed_adj_cli")
	assert.NotContains(t, alert.RiskReason, "smoothed_wcli")
	assert.InDelta(t, 39.8283, alert.Latitude, 1e-9)
	assert.InDelta(t, -98.5795, alert.Longitude, 1e-9)
}

func TestSynthesizeAlertsMultipleGeographies(t *testing.T) {
	agg := NewAggregator(1)

	ny := classified("smoothed_wcli", domain.RiskHigh, 0.9, domain.StatusSuccess)
	ny.Series.GeoType = "state"
	ny.Series.GeoValues = []string{"ny"}
	ca := classified("smoothed_adj_cli", domain.RiskMedium, 0.4, domain.StatusSuccess)
	ca.Series.GeoType = "state"
	ca.Series.GeoValues = []string{"ca"}

	alerts, assessment := agg.Aggregate([]ClassifiedResult{ny, ca})

	require.Len(t, alerts, 2)
	assert.Equal(t, "NY", alerts[0].Location)
	assert.Equal(t, 9, alerts[0].RiskScore)
	assert.Equal(t, "CA", alerts[1].Location)
	assert.Equal(t, 4, alerts[1].RiskScore)
	assert.Equal(t, "multi-regional", assessment.GeographicDistribution)
}

func TestSynthesizeAlertsDeterministicOrder(t *testing.T) {
	agg := NewAggregator(1)

	build := func() []ClassifiedResult {
		a := classified("smoothed_wcli", domain.RiskHigh, 0.9, domain.StatusSuccess)
		a.Series.GeoValues = []string{"wa"}
		b := classified("smoothed_adj_cli", domain.RiskMedium, 0.5, domain.StatusSuccess)
		b.Series.GeoValues = []string{"or"}
		return []ClassifiedResult{a, b}
	}

	first, _ := agg.Aggregate(build())
	second, _ := agg.Aggregate(build())

	require.Len(t, first, 2)
	require.Len(t, second, 2)
	for i := range first {
		assert.Equal(t, first[i].Location, second[i].Location)
		assert.Equal(t, first[i].RiskScore, second[i].RiskScore)
		assert.Equal(t, first[i].RiskReason, second[i].RiskReason)
	}
}

func TestRiskScoreClamping(t *testing.T) {
	assert.Equal(t, 1, riskScore(0))
	assert.Equal(t, 1, riskScore(0.04))
	assert.Equal(t, 5, riskScore(0.45))
	assert.Equal(t, 10, riskScore(1.0))
	assert.Equal(t, 10, riskScore(2.5))
}

func TestBuildRecommendations(t *testing.T) {
	t.Run("high risk yields urgent recommendation", func(t *testing.T) {
		results := []ClassifiedResult{
			classified("smoothed_wcli", domain.RiskHigh, 0.8, domain.StatusSuccess),
		}
		_, assessment := NewAggregator(1).Aggregate(results)

		recs := BuildRecommendations(assessment, results)

		require.NotEmpty(t, recs)
		assert.Equal(t, domain.PriorityUrgent, recs[0].Priority)
		assert.Contains(t, recs[0].Action, "smoothed_wcli")
		assert.Equal(t, "Immediate", recs[0].Timeframe)
	})

	t.Run("analyzed evidence yields monitoring recommendation", func(t *testing.T) {
		results := []ClassifiedResult{
			classified("smoothed_wcli", domain.RiskLow, 0.1, domain.StatusSuccess),
		}
		_, assessment := NewAggregator(1).Aggregate(results)

		recs := BuildRecommendations(assessment, results)

		require.Len(t, recs, 1)
		assert.Equal(t, domain.PriorityMedium, recs[0].Priority)
		assert.Contains(t, recs[0].Action, "Continue monitoring")
	})

	t.Run("no evidence falls back to routine surveillance", func(t *testing.T) {
		recs := BuildRecommendations(domain.RiskAssessment{}, nil)

		require.Len(t, recs, 1)
		assert.Equal(t, domain.PriorityLow, recs[0].Priority)
	})
}
