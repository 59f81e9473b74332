// Package jobs contains the scheduled background jobs.
package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/epiwatch/epiwatch/internal/clients/epidata"
	"github.com/epiwatch/epiwatch/internal/config"
	"github.com/epiwatch/epiwatch/internal/domain"
	"github.com/epiwatch/epiwatch/internal/modules/alerts"
	"github.com/epiwatch/epiwatch/internal/modules/reports"
	"github.com/epiwatch/epiwatch/internal/orchestrator"
)

// surveillanceLookback is how far back each scheduled run looks.
const surveillanceLookback = 90 * 24 * time.Hour

// Orchestrator is the subset of the dashboard orchestrator the job needs.
type Orchestrator interface {
	Run(ctx context.Context, req orchestrator.Request) *domain.DashboardReport
}

// SurveillanceJob assembles a dashboard over all cataloged signals and
// persists the report plus any synthesized alerts.
type SurveillanceJob struct {
	orch       Orchestrator
	reportRepo *reports.Repository
	alertRepo  *alerts.Repository
	cfg        *config.Config
	log        zerolog.Logger
	now        func() time.Time
}

// NewSurveillanceJob creates the surveillance job.
func NewSurveillanceJob(
	orch Orchestrator,
	reportRepo *reports.Repository,
	alertRepo *alerts.Repository,
	cfg *config.Config,
	log zerolog.Logger,
) *SurveillanceJob {
	return &SurveillanceJob{
		orch:       orch,
		reportRepo: reportRepo,
		alertRepo:  alertRepo,
		cfg:        cfg,
		log:        log.With().Str("job", "surveillance").Logger(),
		now:        time.Now,
	}
}

// Name returns the job name
func (j *SurveillanceJob) Name() string {
	return "surveillance"
}

// Run assembles one dashboard over the lookback window and persists the
// outcome. A failed run is still stored so the history shows it.
func (j *SurveillanceJob) Run() error {
	end := j.now().UTC()
	start := end.Add(-surveillanceLookback)

	req := orchestrator.Request{
		Signals:   epidata.AvailableSignals(),
		StartDate: start.Format("20060102"),
		EndDate:   end.Format("20060102"),
		TimeType:  "day",
		GeoType:   j.cfg.DefaultGeoType,
		GeoValues: j.cfg.DefaultGeoValues,
	}

	report := j.orch.Run(context.Background(), req)

	id, err := j.reportRepo.Save(report)
	if err != nil {
		return err
	}
	j.log.Info().
		Str("report_id", id).
		Bool("success", report.Success).
		Int("alerts", len(report.Alerts)).
		Msg("Surveillance run stored")

	return j.persistAlerts(report)
}

// persistAlerts stores synthesized alerts, skipping names already on record
// so repeated runs don't pile up duplicates.
func (j *SurveillanceJob) persistAlerts(report *domain.DashboardReport) error {
	for _, a := range report.Alerts {
		existing, err := j.alertRepo.GetByName(a.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if _, err := j.alertRepo.Create(alerts.FromDomain(a, "surveillance")); err != nil {
			return err
		}
	}
	return nil
}
