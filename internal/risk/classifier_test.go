package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/epiwatch/epiwatch/internal/domain"
)

func TestClassifyThresholds(t *testing.T) {
	classifier := NewClassifier(0, 0)

	tests := []struct {
		name      string
		rising    int
		total     int
		status    domain.AnalysisStatus
		wantLevel domain.RiskLevel
		wantRatio float64
	}{
		{
			name:      "all windows rising",
			rising:    10,
			total:     10,
			status:    domain.StatusSuccess,
			wantLevel: domain.RiskHigh,
			wantRatio: 1.0,
		},
		{
			name:      "exactly at high threshold",
			rising:    7,
			total:     10,
			status:    domain.StatusSuccess,
			wantLevel: domain.RiskHigh,
			wantRatio: 0.7,
		},
		{
			name:      "just under high threshold",
			rising:    6999,
			total:     10000,
			status:    domain.StatusSuccess,
			wantLevel: domain.RiskMedium,
			wantRatio: 0.6999,
		},
		{
			name:      "exactly at medium threshold",
			rising:    3,
			total:     10,
			status:    domain.StatusSuccess,
			wantLevel: domain.RiskMedium,
			wantRatio: 0.3,
		},
		{
			name:      "just under medium threshold",
			rising:    2999,
			total:     10000,
			status:    domain.StatusSuccess,
			wantLevel: domain.RiskLow,
			wantRatio: 0.2999,
		},
		{
			name:      "no rising windows",
			rising:    0,
			total:     14,
			status:    domain.StatusSuccess,
			wantLevel: domain.RiskLow,
			wantRatio: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := domain.TrendAnalysisResult{
				SignalName:    "smoothed_wcli",
				RisingWindows: tt.rising,
				TotalPeriods:  tt.total,
				Status:        tt.status,
			}

			got := classifier.Classify(result)
			assert.Equal(t, tt.wantLevel, got.RiskLevel)
			assert.InDelta(t, tt.wantRatio, got.RisingRatio, 1e-12)
		})
	}
}

func TestClassifyNonSuccessIsUnknown(t *testing.T) {
	classifier := NewClassifier(0, 0)

	for _, status := range []domain.AnalysisStatus{
		domain.StatusInsufficientData,
		domain.StatusError,
	} {
		result := domain.TrendAnalysisResult{
			SignalName:    "sum_anosmia_ageusia_smoothed_search",
			RisingWindows: 9,
			TotalPeriods:  10,
			Status:        status,
		}

		got := classifier.Classify(result)
		assert.Equal(t, domain.RiskUnknown, got.RiskLevel, "status %s", status)
		assert.Zero(t, got.RisingRatio)
	}
}

func TestClassifyZeroTotalPeriods(t *testing.T) {
	classifier := NewClassifier(0, 0)

	// A success result with zero windows should not divide by zero.
	result := domain.TrendAnalysisResult{
		SignalName: "smoothed_adj_cli",
		Status:     domain.StatusSuccess,
	}

	got := classifier.Classify(result)
	assert.Equal(t, domain.RiskLow, got.RiskLevel)
	assert.Zero(t, got.RisingRatio)
}

func TestClassifyCustomThresholds(t *testing.T) {
	classifier := NewClassifier(0.9, 0.5)

	result := domain.TrendAnalysisResult{
		SignalName:    "confirmed_7dav_incidence_num",
		RisingWindows: 8,
		TotalPeriods:  10,
		Status:        domain.StatusSuccess,
	}

	got := classifier.Classify(result)
	assert.Equal(t, domain.RiskMedium, got.RiskLevel)
}
