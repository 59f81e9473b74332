package clientdata

import "time"

// TTL constants for different data types.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// Epidemiological series revise for about a week after publication, so a
	// 7 day cache keeps fetches cheap without serving badly outdated data.
	TTLSignalSeries = 7 * 24 * time.Hour
)
