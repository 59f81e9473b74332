package alerts

// seedRecords are the demonstration alerts loaded into an empty store so the
// dashboard has content before the first surveillance run completes.
var seedRecords = []Record{
	{
		Name:               "Elevated Respiratory Illness Activity",
		Description:        "Increased respiratory illness reports detected in the region. Enhanced monitoring recommended.",
		Severity:           "MEDIUM",
		AlertType:          "MONITORING",
		RiskScore:          5,
		RiskReason:         "High hospitalization rate",
		Location:           "New York",
		State:              "NY",
		Latitude:           40.7128,
		Longitude:          -74.0060,
		AffectedPopulation: 10000,
		Source:             "Sample Health Department",
	},
	{
		Name:               "Health Surveillance Update",
		Description:        "Routine health surveillance data collection is ongoing. No immediate concerns identified.",
		Severity:           "LOW",
		AlertType:          "SURVEILLANCE",
		RiskScore:          2,
		RiskReason:         "Moderate COVID cases",
		Location:           "Los Angeles",
		State:              "CA",
		Latitude:           34.0522,
		Longitude:          -118.2437,
		AffectedPopulation: 25000,
		Source:             "Sample Health Network",
	},
	{
		Name:               "Seasonal Health Advisory",
		Description:        "Standard seasonal health precautions recommended. Monitor epidemiological signals for changes.",
		Severity:           "LOW",
		AlertType:          "SEASONAL",
		RiskScore:          2,
		RiskReason:         "Vaccination drive ongoing",
		Location:           "Chicago",
		State:              "IL",
		Latitude:           41.8781,
		Longitude:          -87.6298,
		AffectedPopulation: 15000,
		Source:             "Sample Health Services",
	},
}

// Seed inserts the demonstration alerts into an empty store. A store that
// already holds alerts is left untouched.
func (r *Repository) Seed() error {
	n, err := r.Count()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	for _, rec := range seedRecords {
		if _, err := r.Create(rec); err != nil {
			return err
		}
	}
	r.log.Info().Int("count", len(seedRecords)).Msg("Seeded alert store")
	return nil
}
