// Package evidence accumulates classified trend results and synthesizes the
// report-facing evidence objects: alerts, the overall risk assessment, and
// recommendations.
package evidence

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/epiwatch/epiwatch/internal/domain"
	"github.com/epiwatch/epiwatch/internal/risk"
)

// DefaultMinSignals is the minimum number of successfully analyzed signals
// required before an overall risk level other than unknown is reported.
const DefaultMinSignals = 1

// ClassifiedResult is one unit of evidence: a fetched series (nil when the
// fetch failed), its trend analysis, and the classification derived from it.
type ClassifiedResult struct {
	Series         *domain.SignalSeries
	Result         domain.TrendAnalysisResult
	Classification risk.Classification
}

// Aggregator folds classified results into alerts and a risk assessment.
// It holds no state between calls; callers accumulate evidence and hand the
// full slice to Aggregate in one shot, preserving discovery order.
type Aggregator struct {
	minSignals int
}

// NewAggregator creates an aggregator. A minSignals below 1 selects the
// default.
func NewAggregator(minSignals int) *Aggregator {
	if minSignals < 1 {
		minSignals = DefaultMinSignals
	}
	return &Aggregator{minSignals: minSignals}
}

// Aggregate derives alerts and the overall risk assessment from the full set
// of evidence gathered in one run. The input order is the discovery order and
// is preserved in every output list, so identical inputs produce identical
// outputs.
//
// Results named domain.UnknownSignal are kept as-is: they represent tool
// output that could not be mapped back to a signal, and merging them would
// hide how often that happens.
func (a *Aggregator) Aggregate(results []ClassifiedResult) ([]domain.Alert, domain.RiskAssessment) {
	assessment := domain.RiskAssessment{
		OverallRiskLevel: domain.RiskUnknown,
		ConfidenceLevel:  "medium",
		TrendTrajectory:  "stable",
	}

	analyzed := 0
	overall := domain.RiskUnknown
	for _, r := range results {
		level := r.Classification.RiskLevel
		if r.Result.Status == domain.StatusSuccess {
			analyzed++
		}
		if level.Rank() > overall.Rank() {
			overall = level
		}
		if level == domain.RiskHigh {
			assessment.KeyRiskFactors = append(assessment.KeyRiskFactors, r.Result.SignalName)
		}
	}

	if analyzed >= a.minSignals {
		assessment.OverallRiskLevel = overall
	}
	if analyzed >= 2 {
		assessment.ConfidenceLevel = "high"
	}
	if len(assessment.KeyRiskFactors) > 0 {
		assessment.TrendTrajectory = "rising"
	}
	assessment.GeographicDistribution = describeGeographies(results)

	return a.synthesizeAlerts(results), assessment
}

// synthesizeAlerts groups high and medium risk evidence by geography and
// emits one alert per geography. Candidates that would be identical in
// location, risk score and triggering signals merge into one.
func (a *Aggregator) synthesizeAlerts(results []ClassifiedResult) []domain.Alert {
	type candidate struct {
		location string
		signals  []string
		maxRatio float64
		topLevel domain.RiskLevel
	}

	var order []string
	byLocation := make(map[string]*candidate)

	for _, r := range results {
		level := r.Classification.RiskLevel
		if level != domain.RiskHigh && level != domain.RiskMedium {
			continue
		}
		if r.Series == nil {
			continue
		}
		for _, geo := range alertGeographies(r.Series) {
			c, ok := byLocation[geo]
			if !ok {
				c = &candidate{location: geo}
				byLocation[geo] = c
				order = append(order, geo)
			}
			c.signals = append(c.signals, r.Result.SignalName)
			if ratio := r.Classification.RisingRatio; ratio > c.maxRatio {
				c.maxRatio = ratio
			}
			if level.Rank() > c.topLevel.Rank() {
				c.topLevel = level
			}
		}
	}

	alerts := make([]domain.Alert, 0, len(order))
	seen := make(map[string]bool)
	for _, geo := range order {
		c := byLocation[geo]
		score := riskScore(c.maxRatio)

		// Merge candidates identical in location, score and signal set.
		key := fmt.Sprintf("%s|%d|%s", c.location, score, strings.Join(c.signals, ","))
		if seen[key] {
			continue
		}
		seen[key] = true

		lat, lon := geoCoordinates(c.location)
		alerts = append(alerts, domain.Alert{
			ID:   uuid.NewString(),
			Name: fmt.Sprintf("Rising epidemiological activity - %s", locationLabel(c.location)),
			Description: fmt.Sprintf("%s risk trend detected across %d signal(s) in %s",
				c.topLevel, len(c.signals), locationLabel(c.location)),
			RiskScore: score,
			RiskReason: fmt.Sprintf("rising trend in %s (peak rising ratio %.2f)",
				strings.Join(c.signals, ", "), c.maxRatio),
			Location:  locationLabel(c.location),
			Latitude:  lat,
			Longitude: lon,
		})
	}
	return alerts
}

// riskScore maps a rising ratio linearly onto the 1..10 alert scale.
func riskScore(ratio float64) int {
	score := int(math.Round(ratio * 10))
	if score < 1 {
		score = 1
	}
	if score > 10 {
		score = 10
	}
	return score
}

func alertGeographies(series *domain.SignalSeries) []string {
	if len(series.GeoValues) > 0 {
		return series.GeoValues
	}
	return []string{"us"}
}

// describeGeographies summarizes the geographic spread of the evidence.
// COVIDcast national aggregates report as "national".
func describeGeographies(results []ClassifiedResult) string {
	geos := make(map[string]bool)
	national := true
	for _, r := range results {
		if r.Series == nil {
			continue
		}
		if r.Series.GeoType != "nation" {
			national = false
		}
		for _, g := range r.Series.GeoValues {
			geos[g] = true
		}
	}
	switch {
	case len(geos) == 0:
		return "unknown"
	case national:
		return "national"
	case len(geos) == 1:
		return "regional"
	default:
		return "multi-regional"
	}
}

func locationLabel(geo string) string {
	switch strings.ToLower(geo) {
	case "us", "nation", "combined":
		return "United States"
	default:
		return strings.ToUpper(geo)
	}
}

// US geographic centroid; used for national-level alerts. State and county
// geographies fall back to the origin until a proper gazetteer is wired in.
func geoCoordinates(geo string) (float64, float64) {
	switch strings.ToLower(geo) {
	case "us", "nation", "combined":
		return 39.8283, -98.5795
	default:
		return 0, 0
	}
}

// BuildRecommendations derives actionable follow-ups from the aggregated
// evidence. Any high risk signal yields an urgent recommendation naming the
// signals involved; analyzed evidence always yields at least a monitoring
// recommendation. Capped at five entries.
func BuildRecommendations(assessment domain.RiskAssessment, results []ClassifiedResult) []domain.Recommendation {
	var recs []domain.Recommendation

	if len(assessment.KeyRiskFactors) > 0 {
		names := uniqueInOrder(assessment.KeyRiskFactors)
		recs = append(recs, domain.Recommendation{
			Priority: domain.PriorityUrgent,
			Action: fmt.Sprintf("Enhance surveillance for rising epidemiological trends: %s",
				strings.Join(names, ", ")),
			TargetAudience: "Public Health Officials",
			Timeframe:      "Immediate",
		})
	}

	analyzed := 0
	for _, r := range results {
		if r.Result.Status == domain.StatusSuccess {
			analyzed++
		}
	}
	if analyzed > 0 {
		recs = append(recs, domain.Recommendation{
			Priority:       domain.PriorityMedium,
			Action:         fmt.Sprintf("Continue monitoring %d epidemiological signal(s)", analyzed),
			TargetAudience: "Epidemiologists",
			Timeframe:      "Ongoing",
		})
	}

	if len(recs) == 0 {
		recs = append(recs, domain.Recommendation{
			Priority:       domain.PriorityLow,
			Action:         "Maintain routine epidemiological surveillance",
			TargetAudience: "Public Health Officials",
			Timeframe:      "Ongoing",
		})
	}

	if len(recs) > 5 {
		recs = recs[:5]
	}
	return recs
}

func uniqueInOrder(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
