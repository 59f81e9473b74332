// Package risk classifies trend analysis results into discrete risk levels.
package risk

import (
	"github.com/epiwatch/epiwatch/internal/domain"
)

// Default classification thresholds on the rising ratio.
const (
	DefaultHighThreshold   = 0.7
	DefaultMediumThreshold = 0.3
)

// Classification is the outcome of classifying one trend analysis result.
type Classification struct {
	RiskLevel   domain.RiskLevel `json:"risk_level"`
	RisingRatio float64          `json:"rising_ratio"`
}

// Classifier maps rising ratios to risk levels. It is a pure function of its
// inputs; thresholds are fixed at construction so tests stay deterministic.
type Classifier struct {
	highThreshold   float64
	mediumThreshold float64
}

// NewClassifier creates a classifier with the given thresholds.
// Non-positive thresholds select the defaults.
func NewClassifier(highThreshold, mediumThreshold float64) *Classifier {
	if highThreshold <= 0 {
		highThreshold = DefaultHighThreshold
	}
	if mediumThreshold <= 0 {
		mediumThreshold = DefaultMediumThreshold
	}
	return &Classifier{
		highThreshold:   highThreshold,
		mediumThreshold: mediumThreshold,
	}
}

// Classify derives a risk level from one trend analysis result.
// Results that did not analyze successfully classify as unknown; both
// threshold boundaries are inclusive (a ratio of exactly 0.7 is high).
func (c *Classifier) Classify(result domain.TrendAnalysisResult) Classification {
	if result.Status != domain.StatusSuccess {
		return Classification{RiskLevel: domain.RiskUnknown}
	}

	ratio := result.RisingRatio()
	classification := Classification{RisingRatio: ratio}

	switch {
	case ratio >= c.highThreshold:
		classification.RiskLevel = domain.RiskHigh
	case ratio >= c.mediumThreshold:
		classification.RiskLevel = domain.RiskMedium
	default:
		classification.RiskLevel = domain.RiskLow
	}

	return classification
}
