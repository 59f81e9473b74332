package database

// schemas maps database names to their schema DDL. All statements are
// idempotent (IF NOT EXISTS) so Migrate can run on every startup.
var schemas = map[string]string{
	"alerts": `
CREATE TABLE IF NOT EXISTS alerts (
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
CREATE INDEX IF NOT EXISTS idx_alerts_state ON alerts(state);
CREATE INDEX IF NOT EXISTS idx_alerts_severity ON alerts(severity);
CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at);
`,

	"reports": `
CREATE TABLE IF NOT EXISTS reports (
    id TEXT PRIMARY KEY,
    success INTEGER NOT NULL,
    overall_risk_level TEXT NOT NULL,
    alert_count INTEGER NOT NULL,
    signal_count INTEGER NOT NULL,
    generation_time_seconds REAL NOT NULL,
    created_at TEXT NOT NULL,
    payload BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_created ON reports(created_at);
`,

	"client_data": `
CREATE TABLE IF NOT EXISTS epidata_series (
    fetch_key TEXT PRIMARY KEY,
    data TEXT NOT NULL,
    expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_epidata_series_expires ON epidata_series(expires_at);
`,
}
