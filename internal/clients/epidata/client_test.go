package epidata

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epiwatch/epiwatch/internal/clientdata"
	"github.com/epiwatch/epiwatch/internal/domain"
)

const testCacheSchema = `
CREATE TABLE epidata_series (fetch_key TEXT PRIMARY KEY, data TEXT NOT NULL, expires_at INTEGER NOT NULL);
`

func setupCacheRepo(t *testing.T) *clientdata.Repository {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(testCacheSchema)
	require.NoError(t, err)

	return clientdata.NewRepository(db)
}

func testRequest() domain.SignalRequest {
	return domain.SignalRequest{
		Signal:    "smoothed_wcli",
		TimeType:  "day",
		GeoType:   "nation",
		GeoValues: []string{"us"},
		StartTime: "20240101",
		EndTime:   "20240107",
	}
}

func mockAPIResponse() map[string]interface{} {
	return map[string]interface{}{
		"result":  1,
		"message": "success",
		"epidata": []map[string]interface{}{
			{"geo_value": "us", "time_value": 20240101, "value": 1.1},
			{"geo_value": "us", "time_value": 20240102, "value": 1.3},
			{"geo_value": "us", "time_value": 20240103, "value": 1.2},
		},
	}
}

func TestFetchSignal_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "fb-survey", r.URL.Query().Get("data_source"))
		assert.Equal(t, "smoothed_wcli", r.URL.Query().Get("signal"))
		assert.Equal(t, "20240101-20240107", r.URL.Query().Get("time_values"))
		assert.Equal(t, "us", r.URL.Query().Get("geo_value"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mockAPIResponse())
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, zerolog.Nop())

	series, err := client.FetchSignal(context.Background(), testRequest())
	require.NoError(t, err)
	require.Len(t, series.Points, 3)

	assert.Equal(t, "smoothed_wcli", series.SignalName)
	assert.Equal(t, 1.1, series.Points[0].Value)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), series.Points[0].TimeValue)
	assert.NoError(t, series.Validate())
}

func TestFetchSignal_InvalidSignal(t *testing.T) {
	client := NewClient("http://unused", nil, zerolog.Nop())

	req := testRequest()
	req.Signal = "not_a_real_signal"

	_, err := client.FetchSignal(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid signal")
	assert.Contains(t, err.Error(), "smoothed_wcli") // lists available signals
}

func TestFetchSignal_MergesGeographies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"result":  1,
			"message": "success",
			"epidata": []map[string]interface{}{
				{"geo_value": "ca", "time_value": 20240101, "value": 2.0},
				{"geo_value": "ny", "time_value": 20240101, "value": 4.0},
				{"geo_value": "ca", "time_value": 20240102, "value": 3.0},
				{"geo_value": "ny", "time_value": 20240102, "value": 5.0},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, zerolog.Nop())

	req := testRequest()
	req.GeoType = "state"
	req.GeoValues = []string{"ca", "ny"}

	series, err := client.FetchSignal(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, series.Points, 2)

	// Values averaged across geographies, one point per date
	assert.Equal(t, 3.0, series.Points[0].Value)
	assert.Equal(t, 4.0, series.Points[1].Value)
	assert.Equal(t, "combined", series.Points[0].GeoValue)
	assert.NoError(t, series.Validate())
}

func TestFetchSignal_APIErrorResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result":  -2,
			"message": "no results",
			"epidata": []map[string]interface{}{},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, zerolog.Nop())

	_, err := client.FetchSignal(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no results")
}

func TestFetchSignal_CacheHit(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(mockAPIResponse())
	}))
	defer server.Close()

	repo := setupCacheRepo(t)
	client := NewClient(server.URL, repo, zerolog.Nop())

	_, err := client.FetchSignal(context.Background(), testRequest())
	require.NoError(t, err)

	series, err := client.FetchSignal(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "second fetch should be served from cache")
	assert.Len(t, series.Points, 3)
}

func TestFetchSignal_StaleFallback(t *testing.T) {
	failing := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(mockAPIResponse())
	}))
	defer server.Close()

	repo := setupCacheRepo(t)
	client := NewClient(server.URL, repo, zerolog.Nop())

	// Prime the cache, then expire the entry manually
	_, err := client.FetchSignal(context.Background(), testRequest())
	require.NoError(t, err)
	require.NoError(t, repo.Store(cacheTable, buildCacheKey(testRequest()), mustCachedSeries(t, repo), -time.Hour))

	failing = true
	series, err := client.FetchSignal(context.Background(), testRequest())
	require.NoError(t, err, "stale cache should be used when API fails")
	assert.Len(t, series.Points, 3)
}

func TestFetchSignal_FailureNoCache(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, zerolog.Nop())

	_, err := client.FetchSignal(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

// mustCachedSeries reads the currently cached series back so the stale-entry
// rewrite in TestFetchSignal_StaleFallback stores the same payload.
func mustCachedSeries(t *testing.T, repo *clientdata.Repository) *domain.SignalSeries {
	t.Helper()

	data, err := repo.Get(cacheTable, buildCacheKey(testRequest()))
	require.NoError(t, err)
	require.NotNil(t, data)

	var series domain.SignalSeries
	require.NoError(t, json.Unmarshal(data, &series))
	return &series
}
