package bulletin

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"alert-bulletin-service/internal/logging"
	"alert-bulletin-service/internal/mediagen"
	"alert-bulletin-service/internal/models"
	"alert-bulletin-service/internal/observability"
	"alert-bulletin-service/internal/storage"
)

// MediaGenerator renders chart images.
type MediaGenerator interface {
	Render(ctx context.Context, req mediagen.ChartRequest) ([]byte, error)
}

// ObjectStore keeps rendered charts under write-once keys.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Store persists bulletins keyed by source reference.
type Store interface {
	UpsertBulletin(ctx context.Context, b models.Bulletin, now time.Time) (models.Bulletin, bool, error)
}

// Composer turns classified alerts into stored bulletins.
type Composer struct {
	media        MediaGenerator
	objects      ObjectStore
	store        Store
	clock        clockwork.Clock
	mediaTimeout time.Duration
	logger       *logging.Logger
	metrics      *observability.Metrics
}

// Option configures a Composer.
type Option func(*Composer)

// WithMedia enables chart attachments. Without it bulletins carry no images.
func WithMedia(media MediaGenerator, objects ObjectStore, timeout time.Duration) Option {
	return func(c *Composer) {
		c.media = media
		c.objects = objects
		c.mediaTimeout = timeout
	}
}

// WithClock overrides the clock used for timestamps and chart keys.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Composer) { c.clock = clock }
}

func NewComposer(store Store, logger *logging.Logger, metrics *observability.Metrics, opts ...Option) *Composer {
	c := &Composer{
		store:        store,
		clock:        clockwork.NewRealClock(),
		mediaTimeout: 20 * time.Second,
		logger:       logger,
		metrics:      metrics,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose builds and upserts the bulletin of a single disease alert. The
// optional media inputs feed the charts; the alert alone is used otherwise.
func (c *Composer) Compose(ctx context.Context, alert models.Alert, mediaInputs ...models.Alert) (models.Bulletin, error) {
	if alert.AlertType.Family() != models.FamilyDisease {
		return models.Bulletin{}, fmt.Errorf("%w: %s alerts are composed per region set, not per alert",
			models.ErrValidation, alert.AlertType)
	}
	if !alert.Level.Reportable() {
		return models.Bulletin{}, fmt.Errorf("%w: alert %s has nothing to report", models.ErrValidation, alert.CompositeID())
	}

	b := BuildDisease(alert)
	if len(mediaInputs) == 0 {
		mediaInputs = []models.Alert{alert}
	}
	b.Attachments = c.renderCharts(ctx, b, alert.Key().RegionCode, mediaInputs)
	return c.save(ctx, b)
}

// ComposeWeather builds and upserts the region-wide bulletin of one weather
// alert type for one period.
func (c *Composer) ComposeWeather(ctx context.Context, periodStart time.Time, alertType models.AlertType, alerts []models.Alert) (models.Bulletin, error) {
	b, err := BuildWeather(periodStart, alertType, alerts)
	if err != nil {
		return models.Bulletin{}, err
	}
	b.Attachments = c.renderCharts(ctx, b, "all", alerts)
	return c.save(ctx, b)
}

func (c *Composer) save(ctx context.Context, b models.Bulletin) (models.Bulletin, error) {
	saved, created, err := c.store.UpsertBulletin(ctx, b, c.clock.Now().UTC())
	if err != nil {
		return models.Bulletin{}, err
	}
	c.metrics.BulletinsComposed.WithLabelValues(string(saved.Family)).Inc()
	c.logger.WithFields(logging.Fields{
		"bulletin_id": saved.ID,
		"source_ref":  saved.SourceRef,
		"created":     created,
		"attachments": len(saved.Attachments),
	}).Info("Bulletin composed")
	return saved, nil
}

var chartKinds = []struct {
	kind    string
	caption string
}{
	{mediagen.KindMap, "Forecast map"},
	{mediagen.KindTable, "Forecast by region"},
}

// renderCharts requests up to two charts. A failed chart is logged and left out.
func (c *Composer) renderCharts(ctx context.Context, b models.Bulletin, regionCode string, inputs []models.Alert) []models.Attachment {
	if c.media == nil || c.objects == nil {
		return nil
	}

	regions := make([]mediagen.RegionValue, 0, len(inputs))
	for _, a := range inputs {
		regions = append(regions, mediagen.RegionValue{
			RegionCode: a.Key().RegionCode,
			RegionName: a.RegionName,
			Value:      a.Value,
			Level:      a.Level,
		})
	}

	var attachments []models.Attachment
	for _, chart := range chartKinds {
		key := storage.ChartKey(chart.kind, b.PeriodStart, b.AlertType, regionCode, c.clock.Now())
		if err := c.renderChart(ctx, chart.kind, key, b, regions); err != nil {
			c.metrics.MediaFailures.WithLabelValues(chart.kind).Inc()
			c.logger.WithFields(logging.Fields{
				"source_ref": b.SourceRef,
				"kind":       chart.kind,
			}).WithError(err).Warn("Skipping chart attachment")
			continue
		}
		attachments = append(attachments, models.Attachment{
			StorageKey: key,
			Caption:    fmt.Sprintf("%s: %s, %s", chart.caption, b.AlertType, WeekLabel(b.PeriodStart)),
		})
	}
	return attachments
}

func (c *Composer) renderChart(ctx context.Context, kind, key string, b models.Bulletin, regions []mediagen.RegionValue) error {
	ctx, cancel := context.WithTimeout(ctx, c.mediaTimeout)
	defer cancel()

	img, err := c.media.Render(ctx, mediagen.ChartRequest{
		Kind:        kind,
		AlertType:   b.AlertType,
		PeriodStart: b.PeriodStart.Format(models.DateLayout),
		Level:       b.Level,
		Title:       b.Title,
		Regions:     regions,
	})
	if err != nil {
		return err
	}
	return c.objects.Put(ctx, key, img, "image/png")
}

// WeekLabel formats the seven-day period starting at periodStart,
// e.g. "Week of Jul 07 to Jul 13, 2025".
func WeekLabel(periodStart time.Time) string {
	start := models.TruncateDate(periodStart)
	end := start.AddDate(0, 0, 6)
	if start.Year() != end.Year() {
		return fmt.Sprintf("Week of %s to %s", start.Format("Jan 02, 2006"), end.Format("Jan 02, 2006"))
	}
	return fmt.Sprintf("Week of %s to %s", start.Format("Jan 02"), end.Format("Jan 02, 2006"))
}

func regionLabel(a models.Alert) string {
	code := a.Key().RegionCode
	if a.RegionName == "" || a.RegionName == code {
		return code
	}
	return fmt.Sprintf("%s (%s)", a.RegionName, code)
}

// BuildDisease renders the text of a disease bulletin. It has no side effects.
func BuildDisease(a models.Alert) models.Bulletin {
	alertID := a.ID
	b := models.Bulletin{
		SourceRef:   a.CompositeID(),
		Family:      models.FamilyDisease,
		AlertType:   a.AlertType,
		Level:       a.Level,
		PeriodStart: models.TruncateDate(a.PeriodStart),
		Title:       fmt.Sprintf("%s: %s, %s", a.Title, regionLabel(a), WeekLabel(a.PeriodStart)),
		AdvisoryText: fmt.Sprintf("%s\n\nForecast: %s %s for %s. Alert level: %s.",
			a.Message, a.AlertType.FormatValue(a.Value), a.AlertType.Unit(),
			strings.TrimPrefix(WeekLabel(a.PeriodStart), "Week of "), a.Level),
		RisksText:      RisksText(a.AlertType),
		SafetyTipsText: SafetyTipsText(a.AlertType),
		Hashtags:       hashtags(a.AlertType, a.Level, a.RegionName),
	}
	if alertID != 0 {
		b.AlertID = &alertID
	}
	return b
}

// BuildWeather renders the text of a region-wide weather bulletin from every
// reportable alert of one type and period.
func BuildWeather(periodStart time.Time, alertType models.AlertType, alerts []models.Alert) (models.Bulletin, error) {
	if alertType.Family() != models.FamilyWeather {
		return models.Bulletin{}, fmt.Errorf("%w: %s is not a weather alert type", models.ErrValidation, alertType)
	}
	period := models.TruncateDate(periodStart)

	var reportable []models.Alert
	for _, a := range alerts {
		if a.AlertType != alertType || !models.TruncateDate(a.PeriodStart).Equal(period) {
			return models.Bulletin{}, fmt.Errorf("%w: alert %s does not belong to %s/%s",
				models.ErrValidation, a.CompositeID(), period.Format(models.DateLayout), alertType)
		}
		if a.Level.Reportable() {
			reportable = append(reportable, a)
		}
	}
	if len(reportable) == 0 {
		return models.Bulletin{}, fmt.Errorf("%w: no reportable %s alerts for %s",
			models.ErrValidation, alertType, period.Format(models.DateLayout))
	}

	sort.SliceStable(reportable, func(i, j int) bool {
		if reportable[i].Level.Rank() != reportable[j].Level.Rank() {
			return reportable[i].Level.Rank() > reportable[j].Level.Rank()
		}
		if reportable[i].Value != reportable[j].Value {
			return reportable[i].Value > reportable[j].Value
		}
		return reportable[i].Key().RegionCode < reportable[j].Key().RegionCode
	})
	top := reportable[0]

	noun := "regions"
	if len(reportable) == 1 {
		noun = "region"
	}

	var lines []string
	for _, a := range reportable {
		lines = append(lines, fmt.Sprintf("- %s: %s %s (%s)",
			regionLabel(a), alertType.FormatValue(a.Value), alertType.Unit(), a.Level))
	}

	return models.Bulletin{
		SourceRef:   models.WeatherRef(period, alertType),
		Family:      models.FamilyWeather,
		AlertType:   alertType,
		Level:       top.Level,
		PeriodStart: period,
		Title:       fmt.Sprintf("%s: %d %s, %s", top.Title, len(reportable), noun, WeekLabel(period)),
		AdvisoryText: fmt.Sprintf("%s\n\nAffected areas for %s:\n%s",
			top.Message, strings.TrimPrefix(WeekLabel(period), "Week of "), strings.Join(lines, "\n")),
		RisksText:      RisksText(alertType),
		SafetyTipsText: SafetyTipsText(alertType),
		Hashtags:       hashtags(alertType, top.Level),
	}, nil
}
