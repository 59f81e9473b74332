package alerts

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epiwatch/epiwatch/internal/domain"
)

const testSchema = `
CREATE TABLE alerts (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT '',
    severity TEXT NOT NULL DEFAULT 'MEDIUM',
    alert_type TEXT NOT NULL DEFAULT 'OUTBREAK',
    risk_score INTEGER NOT NULL DEFAULT 1,
    risk_reason TEXT NOT NULL DEFAULT '',
    location TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL DEFAULT '',
    county TEXT NOT NULL DEFAULT '',
    latitude REAL NOT NULL DEFAULT 0,
    longitude REAL NOT NULL DEFAULT 0,
    affected_population INTEGER NOT NULL DEFAULT 0,
    source TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);
`

func setupRepo(t *testing.T) *Repository {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	return NewRepository(db, zerolog.Nop())
}

func TestCreateAndGet(t *testing.T) {
	repo := setupRepo(t)

	created, err := repo.Create(Record{
		Name:       "Rising epidemiological activity - United States",
		Severity:   "HIGH",
		AlertType:  "OUTBREAK",
		RiskScore:  8,
		RiskReason: "rising trend in smoothed_wcli",
		Location:   "United States",
		Latitude:   39.8283,
		Longitude:  -98.5795,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.NotEmpty(t, created.CreatedAt)

	got, err := repo.Get(created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created, *got)

	byName, err := repo.GetByName(created.Name)
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, created.ID, byName.ID)
}

func TestGetMissingReturnsNil(t *testing.T) {
	repo := setupRepo(t)

	got, err := repo.Get("does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListFilters(t *testing.T) {
	repo := setupRepo(t)

	seed := []Record{
		{Name: "a", Severity: "HIGH", AlertType: "OUTBREAK", State: "NY", CreatedAt: "2021-01-03T00:00:00Z"},
		{Name: "b", Severity: "MEDIUM", AlertType: "MONITORING", State: "CA", CreatedAt: "2021-01-02T00:00:00Z"},
		{Name: "c", Severity: "LOW", AlertType: "SEASONAL", State: "NY", CreatedAt: "2021-01-01T00:00:00Z"},
	}
	for _, rec := range seed {
		_, err := repo.Create(rec)
		require.NoError(t, err)
	}

	tests := []struct {
		name      string
		filter    Filter
		wantNames []string
	}{
		{"no filter newest first", Filter{}, []string{"a", "b", "c"}},
		{"by state", Filter{State: "ny"}, []string{"a", "c"}},
		{"by severity", Filter{Severity: "medium"}, []string{"b"}},
		{"by type", Filter{AlertType: "seasonal"}, []string{"c"}},
		{"since date", Filter{Since: "2021-01-02T00:00:00Z"}, []string{"a", "b"}},
		{"with limit", Filter{Limit: 2}, []string{"a", "b"}},
		{"combined", Filter{State: "NY", Severity: "HIGH"}, []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := repo.List(tt.filter)
			require.NoError(t, err)

			names := make([]string, len(records))
			for i, rec := range records {
				names[i] = rec.Name
			}
			assert.Equal(t, tt.wantNames, names)
		})
	}
}

func TestDelete(t *testing.T) {
	repo := setupRepo(t)

	created, err := repo.Create(Record{Name: "to-delete"})
	require.NoError(t, err)

	deleted, err := repo.Delete(created.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(created.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestSeedIsIdempotent(t *testing.T) {
	repo := setupRepo(t)

	require.NoError(t, repo.Seed())
	n, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, len(seedRecords), n)

	// A second seed leaves the store untouched.
	require.NoError(t, repo.Seed())
	n, err = repo.Count()
	require.NoError(t, err)
	assert.Equal(t, len(seedRecords), n)
}

func TestFromDomainSeverityMapping(t *testing.T) {
	tests := []struct {
		score        int
		wantSeverity string
	}{
		{9, "HIGH"},
		{7, "HIGH"},
		{6, "MEDIUM"},
		{4, "MEDIUM"},
		{3, "LOW"},
		{1, "LOW"},
	}

	for _, tt := range tests {
		rec := FromDomain(domain.Alert{
			ID:        "x",
			Name:      "n",
			RiskScore: tt.score,
		}, "surveillance")
		assert.Equal(t, tt.wantSeverity, rec.Severity, "score %d", tt.score)
		assert.Equal(t, "surveillance", rec.Source)
	}

	// CreatedAt is filled on insert, not conversion.
	rec := FromDomain(domain.Alert{ID: "y", Name: "m"}, "surveillance")
	assert.Empty(t, rec.CreatedAt)
}
