package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alert-bulletin-service/internal/bulletin"
	"alert-bulletin-service/internal/classifier"
	"alert-bulletin-service/internal/logging"
	"alert-bulletin-service/internal/models"
	"alert-bulletin-service/internal/observability"
)

type memoryAlerts struct {
	mu     sync.Mutex
	rows   map[string]models.Alert
	nextID int64
	err    error
}

func newMemoryAlerts() *memoryAlerts {
	return &memoryAlerts{rows: map[string]models.Alert{}}
}

func (m *memoryAlerts) UpsertAlerts(_ context.Context, period time.Time, alertType models.AlertType, alerts []models.Alert) ([]models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	incoming := map[string]bool{}
	for _, a := range alerts {
		incoming[a.CompositeID()] = true
	}
	for id, a := range m.rows {
		if a.AlertType == alertType && a.PeriodStart.Equal(period) && !incoming[id] {
			delete(m.rows, id)
		}
	}
	out := make([]models.Alert, 0, len(alerts))
	for _, a := range alerts {
		if existing, ok := m.rows[a.CompositeID()]; ok {
			a.ID = existing.ID
		} else {
			m.nextID++
			a.ID = m.nextID
		}
		m.rows[a.CompositeID()] = a
		out = append(out, a)
	}
	return out, nil
}

type memoryBulletins struct {
	mu    sync.Mutex
	byRef map[string]models.Bulletin
}

func (m *memoryBulletins) UpsertBulletin(_ context.Context, b models.Bulletin, now time.Time) (models.Bulletin, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.byRef[b.SourceRef]
	if ok {
		b.ID = existing.ID
	} else {
		b.ID = uuid.New()
	}
	b.UpdatedAt = now
	m.byRef[b.SourceRef] = b
	return b, !ok, nil
}

type memoryRuns struct {
	mu      sync.Mutex
	created []models.RunRecord
	updated []models.RunRecord
	err     error
}

func (m *memoryRuns) CreateRun(_ context.Context, run models.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.created = append(m.created, run)
	return nil
}

func (m *memoryRuns) FinishRun(_ context.Context, run models.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, c := range m.created {
		if c.ID == run.ID {
			m.updated = append(m.updated, run)
			return nil
		}
	}
	return fmt.Errorf("pipeline run %s: %w", run.ID, models.ErrNotFound)
}

type recordingDispatcher struct {
	mu     sync.Mutex
	calls  []models.Bulletin
	status models.DeliveryStatus
}

func (d *recordingDispatcher) DispatchGroups(_ context.Context, b models.Bulletin, _ []models.ChannelRequest, _ string) models.DisseminationSummary {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, b)
	return models.DisseminationSummary{BulletinID: b.ID, OverallStatus: d.status}
}

type fixture struct {
	alerts     *memoryAlerts
	bulletins  *memoryBulletins
	runs       *memoryRuns
	dispatcher *recordingDispatcher
	runner     *Runner
}

func newFixture() *fixture {
	f := &fixture{
		alerts:     newMemoryAlerts(),
		bulletins:  &memoryBulletins{byRef: map[string]models.Bulletin{}},
		runs:       &memoryRuns{},
		dispatcher: &recordingDispatcher{status: models.StatusSuccess},
	}
	clock := clockwork.NewFakeClockAt(time.Date(2025, 7, 8, 6, 0, 0, 0, time.UTC))
	logger := logging.NewNop()
	metrics := observability.NewMetricsForTesting()
	composer := bulletin.NewComposer(f.bulletins, logger, metrics, bulletin.WithClock(clock))
	f.runner = NewRunner(classifier.NewDefault(), f.alerts, composer, f.dispatcher,
		NewRecorder(f.runs, clock, logger), logger, metrics)
	return f
}

func dengueRequest(values map[string]float64) RunRequest {
	req := RunRequest{
		PeriodStart: "2025-07-07",
		AlertType:   models.AlertTypeDengue,
		Channels:    []models.ChannelRequest{{Channel: models.ChannelEmail, Group: "officers"}},
	}
	for _, code := range []string{"PH01", "PH02", "PH03"} {
		if v, ok := values[code]; ok {
			req.Regions = append(req.Regions, RegionForecast{RegionCode: code, RegionName: "Region " + code, Value: v})
		}
	}
	return req
}

func TestRun_ZeroCasesCreatesNothing(t *testing.T) {
	f := newFixture()

	res, err := f.runner.Run(context.Background(), dengueRequest(map[string]float64{"PH01": 0}))
	require.NoError(t, err)

	assert.Empty(t, res.Alerts)
	assert.Empty(t, res.Bulletins)
	assert.Empty(t, f.alerts.rows)
	assert.Empty(t, f.bulletins.byRef)
	assert.Empty(t, f.dispatcher.calls)
	assert.Equal(t, models.RunSuccess, res.Run.Status)
	assert.Equal(t, models.RunCounts{RegionsProcessed: 1}, res.Run.RunCounts)
}

func TestRun_OneCaseIsModerate(t *testing.T) {
	f := newFixture()

	res, err := f.runner.Run(context.Background(), dengueRequest(map[string]float64{"PH01": 1}))
	require.NoError(t, err)

	require.Len(t, res.Alerts, 1)
	assert.Equal(t, models.LevelModerate, res.Alerts[0].Level)
	require.Len(t, res.Bulletins, 1)
	assert.Contains(t, res.Bulletins[0].Title, "Moderate")
	assert.Equal(t, "PH01_2025-07-07_Dengue", res.Bulletins[0].SourceRef)
	assert.Len(t, f.dispatcher.calls, 1)
	assert.Equal(t, models.RunCounts{RegionsProcessed: 1, AlertsGenerated: 1, BulletinsCreated: 1}, res.Run.RunCounts)
	assert.Equal(t, models.RunSuccess, res.Run.Status)
}

func TestRun_SixCasesIsSevere(t *testing.T) {
	f := newFixture()

	res, err := f.runner.Run(context.Background(), dengueRequest(map[string]float64{"PH01": 6}))
	require.NoError(t, err)
	require.Len(t, res.Alerts, 1)
	assert.Equal(t, models.LevelSevere, res.Alerts[0].Level)
}

func TestRun_RerunReplacesPeriod(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.runner.Run(ctx, dengueRequest(map[string]float64{"PH01": 2, "PH02": 4}))
	require.NoError(t, err)
	_, err = f.runner.Run(ctx, dengueRequest(map[string]float64{"PH01": 2, "PH02": 0}))
	require.NoError(t, err)

	assert.Len(t, f.alerts.rows, 1)
	assert.Contains(t, f.alerts.rows, "PH01_2025-07-07_Dengue")
	assert.Len(t, f.bulletins.byRef, 2)
}

func TestRun_BadValueIsPartialSuccess(t *testing.T) {
	f := newFixture()

	res, err := f.runner.Run(context.Background(), dengueRequest(map[string]float64{"PH01": 3, "PH02": -1, "PH03": 1.5}))
	require.NoError(t, err)

	assert.Equal(t, models.RunPartialSuccess, res.Run.Status)
	assert.Equal(t, 1, res.Run.RegionsProcessed)
	assert.Equal(t, 1, res.Run.AlertsGenerated)
	assert.Contains(t, res.Run.Detail, "PH02_2025-07-07_Dengue")
}

func TestRun_UnderscoreRegionIsSkipped(t *testing.T) {
	f := newFixture()
	req := dengueRequest(map[string]float64{"PH01": 3})
	req.Regions = append(req.Regions, RegionForecast{RegionCode: "TL_DIL", RegionName: "Dili", Value: 5})

	res, err := f.runner.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, models.RunPartialSuccess, res.Run.Status)
	assert.Contains(t, res.Run.Detail, "TL_DIL")
	require.Len(t, res.Alerts, 1)
	assert.Equal(t, "PH01", res.Alerts[0].RegionCode)
	for id := range f.alerts.rows {
		_, err := models.ParseAlertKey(id)
		assert.NoError(t, err)
	}
}

func TestRun_UnsupportedAlertTypeFails(t *testing.T) {
	f := newFixture()
	dengueOnly, err := classifier.New(classifier.Tables{
		models.AlertTypeDengue: classifier.DefaultTables()[models.AlertTypeDengue],
	})
	require.NoError(t, err)
	f.runner.classifier = dengueOnly

	res, err := f.runner.Run(context.Background(), RunRequest{
		PeriodStart: "2025-07-07",
		AlertType:   models.AlertTypeRainfall,
		Regions:     []RegionForecast{{RegionCode: "R1", Value: 40}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, res.Run.Status)
	assert.Contains(t, res.Run.Detail, "ConfigurationError")
	assert.Empty(t, f.alerts.rows)
}

func TestRun_DispatchFailureIsPartialSuccess(t *testing.T) {
	f := newFixture()
	f.dispatcher.status = models.StatusFailed

	res, err := f.runner.Run(context.Background(), dengueRequest(map[string]float64{"PH01": 3}))
	require.NoError(t, err)
	assert.Equal(t, models.RunPartialSuccess, res.Run.Status)
	assert.Equal(t, 1, res.Run.BulletinsCreated)
}

func TestRun_ConflictIsSurfaced(t *testing.T) {
	f := newFixture()
	f.alerts.err = fmt.Errorf("%w: upsert alert: duplicate key", models.ErrPersistenceConflict)

	res, err := f.runner.Run(context.Background(), dengueRequest(map[string]float64{"PH01": 3}))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrPersistenceConflict)
	assert.Equal(t, models.RunFailed, res.Run.Status)
	assert.Equal(t, 1, res.Run.RegionsProcessed)
	assert.Empty(t, f.bulletins.byRef)

	require.Len(t, f.runs.created, 1)
	assert.Equal(t, models.RunInProgress, f.runs.created[0].Status)
	require.Len(t, f.runs.updated, 1)
	assert.Equal(t, models.RunFailed, f.runs.updated[0].Status)
}

func TestRun_InvalidRequest(t *testing.T) {
	f := newFixture()

	req := dengueRequest(map[string]float64{"PH01": 3})
	req.PeriodStart = "07/07/2025"
	res, err := f.runner.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, res.Run.Status)
	assert.Contains(t, res.Run.Detail, "ValidationError")
	assert.Empty(t, f.alerts.rows)
}

func TestRun_WeatherBulletinIsRegionWide(t *testing.T) {
	f := newFixture()

	res, err := f.runner.Run(context.Background(), RunRequest{
		PeriodStart: "2025-07-07",
		AlertType:   models.AlertTypeHeatIndex,
		Regions: []RegionForecast{
			{RegionCode: "R1", Value: 45},
			{RegionCode: "R2", Value: 34},
			{RegionCode: "R3", Value: 25},
		},
	})
	require.NoError(t, err)
	assert.Len(t, res.Alerts, 2)
	require.Len(t, res.Bulletins, 1)
	assert.Equal(t, "weather_2025-07-07_Heat Index", res.Bulletins[0].SourceRef)
	assert.Equal(t, models.LevelDanger, res.Bulletins[0].Level)
	assert.Empty(t, f.dispatcher.calls)
	assert.Equal(t, models.RunSuccess, res.Run.Status)
}

func TestRecorder_FinishFallsBackToInsert(t *testing.T) {
	runs := &memoryRuns{}
	r := NewRecorder(runs, clockwork.NewFakeClock(), logging.NewNop())

	run := r.Finish(context.Background(), models.RunRecord{ID: uuid.New(), PipelineName: "dengue_alerts", Status: models.RunSuccess})
	require.Len(t, runs.created, 1)
	assert.Equal(t, models.RunSuccess, runs.created[0].Status)
	assert.False(t, run.FinishedAt.IsZero())
}

func TestRecorder_StoreFailureIsSwallowed(t *testing.T) {
	runs := &memoryRuns{err: errors.New("db down")}
	r := NewRecorder(runs, clockwork.NewFakeClock(), logging.NewNop())

	run := r.Start(context.Background(), "dengue_alerts")
	assert.Equal(t, models.RunInProgress, run.Status)
	run = r.RecordRun(context.Background(), "dengue_alerts", models.RunFailed, models.RunCounts{RegionsProcessed: 2})
	assert.Equal(t, 2, run.RegionsProcessed)
}

func TestRunRequest_Name(t *testing.T) {
	assert.Equal(t, "heat_index_alerts", RunRequest{AlertType: models.AlertTypeHeatIndex}.Name())
	assert.Equal(t, "custom", RunRequest{PipelineName: "custom"}.Name())
}

func TestRunRequest_Validate(t *testing.T) {
	ok := RunRequest{PeriodStart: "2025-07-07", AlertType: models.AlertTypeRainfall}
	assert.NoError(t, ok.Validate())

	badType := ok
	badType.AlertType = "Earthquake"
	assert.ErrorIs(t, badType.Validate(), models.ErrValidation)

	badChannel := ok
	badChannel.Channels = []models.ChannelRequest{{Channel: "Fax", Group: "g"}}
	assert.ErrorIs(t, badChannel.Validate(), models.ErrValidation)
}
