package epidata

import (
	"fmt"
	"sort"
)

// SignalInfo describes one known COVIDcast signal.
type SignalInfo struct {
	Source      string // COVIDcast data source (e.g. "fb-survey")
	DisplayName string // Human-readable name for dashboards
}

// signalCatalog maps the supported signal names to their sources and display
// names. Fetches for signals outside this catalog are rejected up front so a
// typo surfaces as a clear error instead of an empty API response.
var signalCatalog = map[string]SignalInfo{
	"smoothed_wwearing_mask_7d":                        {Source: "fb-survey", DisplayName: "People Wearing Masks"},
	"smoothed_wcovid_vaccinated_appointment_or_accept": {Source: "fb-survey", DisplayName: "Vaccine Acceptance"},
	"smoothed_wcli":                                    {Source: "fb-survey", DisplayName: "COVID-Like Symptoms"},
	"smoothed_whh_cmnty_cli":                           {Source: "fb-survey", DisplayName: "COVID-Like Symptoms in Community"},
	"sum_anosmia_ageusia_smoothed_search":              {Source: "google-symptoms", DisplayName: "COVID Symptom Searches"},
	"smoothed_adj_cli":                                 {Source: "doctor-visits", DisplayName: "COVID-Related Doctor Visits"},
	"deaths_7dav_incidence_prop":                       {Source: "doctor-visits", DisplayName: "COVID Deaths"},
	"confirmed_7dav_incidence_prop":                    {Source: "jhu-csse", DisplayName: "COVID Cases"},
	"confirmed_admissions_covid_1d_prop_7dav":          {Source: "hhs", DisplayName: "COVID Hospital Admissions"},
}

// LookupSignal returns catalog info for a signal name, or an error listing
// the available signals when the name is unknown.
func LookupSignal(name string) (SignalInfo, error) {
	info, ok := signalCatalog[name]
	if !ok {
		return SignalInfo{}, fmt.Errorf("invalid signal %q, available signals: %v", name, AvailableSignals())
	}
	return info, nil
}

// DisplayName returns the human-readable name for a signal, falling back to
// the raw signal name when it is not in the catalog.
func DisplayName(name string) string {
	if info, ok := signalCatalog[name]; ok {
		return info.DisplayName
	}
	return name
}

// AvailableSignals returns the catalog's signal names, sorted for stable output.
func AvailableSignals() []string {
	names := make([]string, 0, len(signalCatalog))
	for name := range signalCatalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
