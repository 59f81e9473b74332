// Package trend implements rolling-window rising-trend detection for
// epidemiological time series.
//
// The detector slides a fixed-size window across a series, fits an ordinary
// least-squares regression to the log-transformed values in each window, and
// merges contiguous windows whose slope clears a caller-supplied threshold
// into rising periods. The log-scale slope is a proxy for exponential growth
// rate, so the same threshold is meaningful across signals with very
// different magnitudes.
package trend

import (
	"fmt"
	"math"
	"time"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"github.com/epiwatch/epiwatch/internal/domain"
)

// LogFloor is the positive floor applied before the log transform.
// Values <= 0 are clamped to this floor rather than discarded, so a series
// with zero-valued observations keeps its full length. Callers should be
// aware this introduces a visible discontinuity at the floor.
const LogFloor = 1e-10

// DefaultSmoothingWindow is the width of the centered moving average applied
// when smoothing is requested. Smoothing suppresses single-day noise that
// would otherwise produce spurious one-window rising periods.
const DefaultSmoothingWindow = 3

// maxSampleSlopes bounds how many per-window slopes are reported back in a
// result, matching the tool contract's "sample" semantics.
const maxSampleSlopes = 5

// Params are the per-call tuning knobs for detection.
type Params struct {
	WindowSize  int     // sliding window length in points, >= 2
	MinLogSlope float64 // minimum log-scale slope for a window to count as rising
	Smoothing   bool    // apply centered moving average before analysis
}

// Window is one regression fit over a sliding window. Ephemeral: produced
// and consumed inside the detector, only the merged periods leave.
type Window struct {
	Start    time.Time
	End      time.Time
	LogSlope float64
	Rising   bool
	valid    bool // false when the window contained NaN values
}

// Detector performs rolling trend detection. It is stateless and safe for
// concurrent use.
type Detector struct {
	smoothingWindow int
}

// NewDetector creates a detector with the given smoothing window width.
// Width <= 0 selects DefaultSmoothingWindow.
func NewDetector(smoothingWindow int) *Detector {
	if smoothingWindow <= 0 {
		smoothingWindow = DefaultSmoothingWindow
	}
	return &Detector{smoothingWindow: smoothingWindow}
}

// Detect runs rolling trend detection over one series.
//
// The returned result is a pure function of the inputs: calling Detect twice
// with the same series and params yields identical results. Numeric edge
// cases (flat series, all-zero series) degrade to a success result with no
// rising periods or to insufficient_data; only malformed input (unordered or
// duplicate timestamps, invalid params) produces a status of error.
func (d *Detector) Detect(series *domain.SignalSeries, params Params) domain.TrendAnalysisResult {
	result := domain.TrendAnalysisResult{
		SignalName:      series.SignalName,
		RisingPeriods:   []domain.RisingPeriod{},
		SampleLogSlopes: []float64{},
	}

	if params.WindowSize < 2 {
		result.Status = domain.StatusError
		result.Error = fmt.Sprintf("window size must be >= 2, got %d", params.WindowSize)
		return result
	}
	if math.IsNaN(params.MinLogSlope) || math.IsInf(params.MinLogSlope, 0) {
		result.Status = domain.StatusError
		result.Error = "min log slope must be finite"
		return result
	}

	if err := series.Validate(); err != nil {
		result.Status = domain.StatusError
		result.Error = err.Error()
		return result
	}

	values := series.Values()
	dates := series.Dates()

	if params.Smoothing {
		values, dates = d.smooth(values, dates)
	}

	totalPeriods := len(values) - params.WindowSize + 1
	if totalPeriods < 0 {
		totalPeriods = 0
	}
	result.TotalPeriods = totalPeriods

	if totalPeriods == 0 {
		result.Status = domain.StatusInsufficientData
		return result
	}

	logValues := make([]float64, len(values))
	for i, v := range values {
		if v < LogFloor {
			v = LogFloor
		}
		logValues[i] = math.Log(v)
	}

	windows := fitWindows(logValues, dates, params)

	for _, w := range windows {
		if w.valid && len(result.SampleLogSlopes) < maxSampleSlopes {
			result.SampleLogSlopes = append(result.SampleLogSlopes, w.LogSlope)
		}
		if w.valid && w.Rising {
			result.RisingWindows++
		}
	}

	result.RisingPeriods = mergeRisingRuns(windows)
	result.Status = domain.StatusSuccess
	return result
}

// smooth applies a centered moving average of width d.smoothingWindow.
// Edge points without a full window are dropped (values and dates shrink by
// window-1), mirroring a centered rolling mean with NaN edges removed.
func (d *Detector) smooth(values []float64, dates []time.Time) ([]float64, []time.Time) {
	w := d.smoothingWindow
	if len(values) < w {
		return nil, nil
	}

	// talib.Sma is trailing: sma[i] averages values[i-w+1 .. i]. The
	// centered average at position i is the trailing average at i+half.
	sma := talib.Sma(values, w)
	half := w / 2

	smoothed := make([]float64, 0, len(values)-w+1)
	trimmedDates := make([]time.Time, 0, len(values)-w+1)
	for i := half; i < len(values)-(w-1-half); i++ {
		smoothed = append(smoothed, sma[i+(w-1-half)])
		trimmedDates = append(trimmedDates, dates[i])
	}

	return smoothed, trimmedDates
}

// fitWindows fits an OLS regression of log value against time index for each
// sliding window position.
func fitWindows(logValues []float64, dates []time.Time, params Params) []Window {
	n := len(logValues) - params.WindowSize + 1
	windows := make([]Window, 0, n)

	xs := make([]float64, params.WindowSize)
	for i := range xs {
		xs[i] = float64(i)
	}

	for i := 0; i < n; i++ {
		w := Window{
			Start: dates[i],
			End:   dates[i+params.WindowSize-1],
			valid: true,
		}

		ys := logValues[i : i+params.WindowSize]
		for _, y := range ys {
			if math.IsNaN(y) {
				w.valid = false
				break
			}
		}

		if w.valid {
			_, slope := stat.LinearRegression(xs, ys, nil, false)
			w.LogSlope = slope
			w.Rising = slope >= params.MinLogSlope
		}

		windows = append(windows, w)
	}

	return windows
}

// mergeRisingRuns collapses maximal runs of contiguous rising windows into
// rising periods. A period starts at the first rising window's start and ends
// at the last rising window's end; any non-rising window breaks the run.
// The returned periods are non-overlapping and ordered by start.
func mergeRisingRuns(windows []Window) []domain.RisingPeriod {
	periods := []domain.RisingPeriod{}

	inRun := false
	var current domain.RisingPeriod
	for _, w := range windows {
		if w.valid && w.Rising {
			if !inRun {
				current = domain.RisingPeriod{Start: w.Start, End: w.End}
				inRun = true
			} else {
				current.End = w.End
			}
			continue
		}
		if inRun {
			periods = append(periods, current)
			inRun = false
		}
	}
	if inRun {
		periods = append(periods, current)
	}

	return periods
}

// DirectionFor derives the coarse trend direction reported alongside a
// signal: rising when the latest analyzable window belongs to a rising
// period, stable otherwise, unknown when analysis did not succeed.
func DirectionFor(series *domain.SignalSeries, result domain.TrendAnalysisResult) domain.TrendDirection {
	if result.Status != domain.StatusSuccess {
		return domain.TrendUnknown
	}
	if len(result.RisingPeriods) == 0 || len(series.Points) == 0 {
		return domain.TrendStable
	}

	last := result.RisingPeriods[len(result.RisingPeriods)-1]
	// Smoothing trims the series tail, so "latest" allows for the trimmed edge.
	cutoff := series.Points[len(series.Points)-1].TimeValue.AddDate(0, 0, -DefaultSmoothingWindow)
	if !last.End.Before(cutoff) {
		return domain.TrendRising
	}
	return domain.TrendStable
}
