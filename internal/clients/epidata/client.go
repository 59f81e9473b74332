// Package epidata provides a client for the Delphi COVIDcast epidemiological
// signal API, with persistent response caching.
package epidata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/epiwatch/epiwatch/internal/clientdata"
	"github.com/epiwatch/epiwatch/internal/domain"
	"github.com/rs/zerolog"
)

const cacheTable = "epidata_series"

// Client for the Delphi COVIDcast API.
type Client struct {
	baseURL   string
	client    *http.Client
	log       zerolog.Logger
	cacheRepo *clientdata.Repository
}

// NewClient creates a new COVIDcast client.
// cacheRepo is optional - if nil, caching is disabled.
func NewClient(baseURL string, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://api.delphi.cmu.edu/epidata/covidcast/"
	}
	return &Client{
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 30 * time.Second},
		log:       log.With().Str("client", "epidata").Logger(),
		cacheRepo: cacheRepo,
	}
}

// covidcastResponse mirrors the COVIDcast API envelope.
type covidcastResponse struct {
	Result  int    `json:"result"`
	Message string `json:"message"`
	Epidata []struct {
		GeoValue   string   `json:"geo_value"`
		TimeValue  int      `json:"time_value"` // YYYYMMDD
		Value      float64  `json:"value"`
		Stderr     *float64 `json:"stderr"`
		SampleSize *float64 `json:"sample_size"`
	} `json:"epidata"`
}

// FetchSignal fetches one signal's time series with cache.
// If the API fails, returns stale cached data if available (stale data > no data).
//
// When the request spans multiple geographies, observations sharing a date are
// averaged into a single point so the returned series has strictly ascending,
// duplicate-free timestamps (the invariant downstream analysis depends on).
func (c *Client) FetchSignal(ctx context.Context, req domain.SignalRequest) (*domain.SignalSeries, error) {
	info, err := LookupSignal(req.Signal)
	if err != nil {
		return nil, err
	}

	cacheKey := buildCacheKey(req)

	// Check persistent cache for fresh data
	if c.cacheRepo != nil {
		data, err := c.cacheRepo.GetIfFresh(cacheTable, cacheKey)
		if err == nil && data != nil {
			var cached domain.SignalSeries
			if err := json.Unmarshal(data, &cached); err == nil {
				c.log.Debug().
					Str("signal", req.Signal).
					Int("points", len(cached.Points)).
					Msg("Cache hit")
				return &cached, nil
			}
		}
	}

	series, err := c.fetchFromAPI(ctx, req, info)
	if err != nil {
		// API failed - try to get stale cached data as fallback
		if stale, ok := c.getStaleFromCache(cacheKey); ok {
			c.log.Warn().
				Err(err).
				Str("signal", req.Signal).
				Int("points", len(stale.Points)).
				Msg("API failed, using stale cached series")
			return stale, nil
		}
		return nil, err
	}

	// Cache persistently
	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store(cacheTable, cacheKey, series, clientdata.TTLSignalSeries); err != nil {
			c.log.Warn().Err(err).Str("key", cacheKey).Msg("Failed to cache signal series")
		}
	}

	c.log.Info().
		Str("signal", req.Signal).
		Str("geo_type", req.GeoType).
		Int("points", len(series.Points)).
		Msg("Fetched signal")

	return series, nil
}

// fetchFromAPI performs the HTTP request and converts the response into a
// validated SignalSeries.
func (c *Client) fetchFromAPI(ctx context.Context, req domain.SignalRequest, info SignalInfo) (*domain.SignalSeries, error) {
	query := url.Values{}
	query.Set("data_source", info.Source)
	query.Set("signal", req.Signal)
	query.Set("time_type", req.TimeType)
	query.Set("geo_type", req.GeoType)
	query.Set("time_values", fmt.Sprintf("%s-%s", req.StartTime, req.EndTime))
	if len(req.GeoValues) > 0 {
		query.Set("geo_value", strings.Join(req.GeoValues, ","))
	} else {
		query.Set("geo_value", "*")
	}

	apiURL := c.baseURL + "?" + query.Encode()
	c.log.Debug().Str("url", apiURL).Msg("Fetching signal")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var payload covidcastResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	// result == 1 is the API's success code; -2 means no results
	if payload.Result != 1 {
		return nil, fmt.Errorf("API error for signal %s: %s (result=%d)", req.Signal, payload.Message, payload.Result)
	}

	points, err := c.buildPoints(payload)
	if err != nil {
		return nil, err
	}

	series := &domain.SignalSeries{
		SignalName: req.Signal,
		GeoType:    req.GeoType,
		GeoValues:  req.GeoValues,
		Points:     points,
		FetchedAt:  time.Now().UTC(),
	}

	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("malformed series from API: %w", err)
	}

	return series, nil
}

// buildPoints converts API rows into ordered points, averaging observations
// that share a date across geographies.
func (c *Client) buildPoints(payload covidcastResponse) ([]domain.TimeSeriesPoint, error) {
	type bucket struct {
		sum      float64
		count    int
		geo      string
		stderr   *float64
		sampleSz *int
	}

	buckets := make(map[int]*bucket)
	for _, row := range payload.Epidata {
		b, ok := buckets[row.TimeValue]
		if !ok {
			b = &bucket{geo: row.GeoValue, stderr: row.Stderr}
			if row.SampleSize != nil {
				n := int(*row.SampleSize)
				b.sampleSz = &n
			}
			buckets[row.TimeValue] = b
		}
		b.sum += row.Value
		b.count++
		if b.geo != row.GeoValue {
			// Multiple geographies collapse into one combined point;
			// per-geography stderr no longer applies.
			b.geo = "combined"
			b.stderr = nil
			b.sampleSz = nil
		}
	}

	points := make([]domain.TimeSeriesPoint, 0, len(buckets))
	for timeValue, b := range buckets {
		date, err := parseTimeValue(timeValue)
		if err != nil {
			return nil, err
		}
		points = append(points, domain.TimeSeriesPoint{
			GeoValue:   b.geo,
			TimeValue:  date,
			Value:      b.sum / float64(b.count),
			Stderr:     b.stderr,
			SampleSize: b.sampleSz,
		})
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].TimeValue.Before(points[j].TimeValue)
	})

	return points, nil
}

// getStaleFromCache retrieves a cached series even if expired.
// Use this as a fallback when API calls fail - stale data is better than no data.
func (c *Client) getStaleFromCache(cacheKey string) (*domain.SignalSeries, bool) {
	if c.cacheRepo == nil {
		return nil, false
	}

	data, err := c.cacheRepo.Get(cacheTable, cacheKey)
	if err != nil || data == nil {
		return nil, false
	}

	var cached domain.SignalSeries
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, false
	}

	return &cached, true
}

// buildCacheKey derives a stable cache key from all fetch parameters.
func buildCacheKey(req domain.SignalRequest) string {
	return strings.Join([]string{
		req.Signal,
		req.TimeType,
		req.GeoType,
		strings.Join(req.GeoValues, ","),
		req.StartTime,
		req.EndTime,
	}, "|")
}

// parseTimeValue converts a YYYYMMDD integer into a UTC date.
func parseTimeValue(v int) (time.Time, error) {
	date, err := time.Parse("20060102", fmt.Sprintf("%08d", v))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time_value %d: %w", v, err)
	}
	return date.UTC(), nil
}
