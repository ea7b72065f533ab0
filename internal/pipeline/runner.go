package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"alert-bulletin-service/internal/logging"
	"alert-bulletin-service/internal/models"
	"alert-bulletin-service/internal/observability"
)

// Classifier turns a forecast value into an alert.
type Classifier interface {
	Supports(alertType models.AlertType) bool
	ClassifyForecast(fv models.ForecastValue) (models.Alert, error)
}

// AlertStore replaces the alert set of one period and alert type.
type AlertStore interface {
	UpsertAlerts(ctx context.Context, periodStart time.Time, alertType models.AlertType, alerts []models.Alert) ([]models.Alert, error)
}

// Composer builds and stores bulletins.
type Composer interface {
	Compose(ctx context.Context, alert models.Alert, mediaInputs ...models.Alert) (models.Bulletin, error)
	ComposeWeather(ctx context.Context, periodStart time.Time, alertType models.AlertType, alerts []models.Alert) (models.Bulletin, error)
}

// Dispatcher sends a bulletin to named channel groups.
type Dispatcher interface {
	DispatchGroups(ctx context.Context, b models.Bulletin, reqs []models.ChannelRequest, initiatedBy string) models.DisseminationSummary
}

// Runner executes one pipeline run: classify, store, compose, dispatch.
type Runner struct {
	classifier Classifier
	alerts     AlertStore
	composer   Composer
	dispatcher Dispatcher
	recorder   *Recorder
	logger     *logging.Logger
	metrics    *observability.Metrics
}

func NewRunner(classifier Classifier, alerts AlertStore, composer Composer, dispatcher Dispatcher,
	recorder *Recorder, logger *logging.Logger, metrics *observability.Metrics) *Runner {
	return &Runner{
		classifier: classifier,
		alerts:     alerts,
		composer:   composer,
		dispatcher: dispatcher,
		recorder:   recorder,
		logger:     logger,
		metrics:    metrics,
	}
}

// Result is the outcome of one run.
type Result struct {
	Run       models.RunRecord
	Alerts    []models.Alert
	Bulletins []models.Bulletin
	Summaries []models.DisseminationSummary
}

// tally counts unit outcomes for the final run status.
type tally struct {
	succeeded int
	failed    int
	problems  []string
}

func (t *tally) fail(format string, args ...any) {
	t.failed++
	if len(t.problems) < 10 {
		t.problems = append(t.problems, fmt.Sprintf(format, args...))
	}
}

func (t *tally) status() models.RunStatus {
	switch {
	case t.failed == 0:
		return models.RunSuccess
	case t.succeeded > 0:
		return models.RunPartialSuccess
	default:
		return models.RunFailed
	}
}

// Run executes req and always leaves a run record behind. The returned error
// is non-nil only when the alert store rejected the batch; a persistence
// conflict is surfaced to the caller as is.
func (r *Runner) Run(ctx context.Context, req RunRequest) (Result, error) {
	run := r.recorder.Start(ctx, req.Name())
	log := r.logger.WithFields(logging.Fields{
		"run_id":     run.ID,
		"pipeline":   run.PipelineName,
		"alert_type": req.AlertType,
		"period":     req.PeriodStart,
	})
	log.Info("Pipeline run started")

	var result Result
	finish := func(status models.RunStatus, counts models.RunCounts, detail string) {
		run.Status = status
		run.RunCounts = counts
		run.Detail = detail
		result.Run = r.recorder.Finish(ctx, run)
		r.metrics.Runs.WithLabelValues(string(status)).Inc()
		log.WithFields(logging.Fields{
			"status":            status,
			"regions_processed": counts.RegionsProcessed,
			"alerts_generated":  counts.AlertsGenerated,
			"bulletins_created": counts.BulletinsCreated,
		}).Info("Pipeline run finished")
	}

	if err := req.Validate(); err != nil {
		log.WithError(err).Warn("Rejected run request")
		finish(models.RunFailed, models.RunCounts{}, err.Error())
		return result, nil
	}
	if !r.classifier.Supports(req.AlertType) {
		err := fmt.Errorf("%w: no threshold table for alert type %q", models.ErrConfiguration, req.AlertType)
		log.WithError(err).Error("Rejected run request")
		finish(models.RunFailed, models.RunCounts{}, err.Error())
		return result, nil
	}
	period, _ := req.Period()

	var counts models.RunCounts
	var t tally

	reportable := r.classify(req.Forecasts(period), &counts, &t, log)

	persisted, err := r.alerts.UpsertAlerts(ctx, period, req.AlertType, reportable)
	if err != nil {
		log.WithError(err).Error("Failed to store alerts")
		finish(models.RunFailed, counts, "store alerts: "+err.Error())
		return result, err
	}
	counts.AlertsGenerated = len(persisted)
	result.Alerts = persisted

	result.Bulletins = r.compose(ctx, period, req.AlertType, persisted, &t, log)
	counts.BulletinsCreated = len(result.Bulletins)

	if len(req.Channels) > 0 {
		for _, b := range result.Bulletins {
			summary := r.dispatcher.DispatchGroups(ctx, b, req.Channels, req.InitiatedBy)
			result.Summaries = append(result.Summaries, summary)
			if summary.OverallStatus == models.StatusSuccess {
				t.succeeded++
			} else {
				t.fail("dispatch %s: %s", b.SourceRef, summary.OverallStatus)
			}
		}
	}

	finish(t.status(), counts, strings.Join(t.problems, "; "))
	return result, nil
}

// classify runs every forecast through the classifier in input order. Bad
// inputs and duplicate regions are logged and skipped.
func (r *Runner) classify(forecasts []models.ForecastValue, counts *models.RunCounts, t *tally, log *logrus.Entry) []models.Alert {
	seen := make(map[string]struct{}, len(forecasts))
	var reportable []models.Alert
	for _, fv := range forecasts {
		key := models.NewAlertKey(fv.RegionCode, fv.PeriodStart, fv.AlertType)
		if _, dup := seen[key.RegionCode]; dup {
			t.fail("%s: duplicate region", key)
			log.WithField("alert_id", key.String()).Warn("Skipping duplicate region in batch")
			continue
		}

		alert, err := r.classifier.ClassifyForecast(fv)
		if err != nil {
			r.metrics.ClassificationErrors.WithLabelValues(string(fv.AlertType)).Inc()
			t.fail("%s: %v", key, err)
			log.WithField("alert_id", key.String()).WithError(err).Warn("Skipping forecast value")
			continue
		}
		seen[key.RegionCode] = struct{}{}
		counts.RegionsProcessed++
		t.succeeded++
		r.metrics.AlertsClassified.WithLabelValues(string(alert.AlertType), string(alert.Level)).Inc()

		if alert.Level.Reportable() {
			reportable = append(reportable, alert)
		}
	}
	return reportable
}

func (r *Runner) compose(ctx context.Context, period time.Time, alertType models.AlertType, alerts []models.Alert, t *tally, log *logrus.Entry) []models.Bulletin {
	if len(alerts) == 0 {
		return nil
	}

	if alertType.Family() == models.FamilyWeather {
		b, err := r.composer.ComposeWeather(ctx, period, alertType, alerts)
		if err != nil {
			t.fail("compose %s: %v", models.WeatherRef(period, alertType), err)
			log.WithError(err).Error("Failed to compose weather bulletin")
			return nil
		}
		t.succeeded++
		return []models.Bulletin{b}
	}

	var bulletins []models.Bulletin
	for _, a := range alerts {
		b, err := r.composer.Compose(ctx, a, alerts...)
		if err != nil {
			log.WithField("alert_id", a.CompositeID()).WithError(err).Error("Failed to compose bulletin")
			t.fail("compose %s: %v", a.CompositeID(), err)
			continue
		}
		t.succeeded++
		bulletins = append(bulletins, b)
	}
	return bulletins
}
