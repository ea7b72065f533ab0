package bulletin

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alert-bulletin-service/internal/logging"
	"alert-bulletin-service/internal/mediagen"
	"alert-bulletin-service/internal/models"
	"alert-bulletin-service/internal/observability"
)

var period = time.Date(2025, 7, 7, 0, 0, 0, 0, time.UTC)

type memoryStore struct {
	mu    sync.Mutex
	byRef map[string]models.Bulletin
	calls int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{byRef: map[string]models.Bulletin{}}
}

func (s *memoryStore) UpsertBulletin(_ context.Context, b models.Bulletin, now time.Time) (models.Bulletin, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	existing, ok := s.byRef[b.SourceRef]
	if ok {
		b.ID = existing.ID
		b.CreatedAt = existing.CreatedAt
	} else {
		b.ID = uuid.New()
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	s.byRef[b.SourceRef] = b
	return b, !ok, nil
}

type fakeMedia struct {
	fail map[string]error
	reqs []mediagen.ChartRequest
}

func (f *fakeMedia) Render(_ context.Context, req mediagen.ChartRequest) ([]byte, error) {
	f.reqs = append(f.reqs, req)
	if err := f.fail[req.Kind]; err != nil {
		return nil, err
	}
	return []byte("png-" + req.Kind), nil
}

type fakeObjects struct {
	keys []string
}

func (f *fakeObjects) Put(_ context.Context, key string, _ []byte, contentType string) error {
	if contentType != "image/png" {
		return errors.New("unexpected content type")
	}
	f.keys = append(f.keys, key)
	return nil
}

func dengue(value float64, level models.AlertLevel, title string) models.Alert {
	return models.Alert{
		ID:          11,
		RegionCode:  "PH0403405",
		RegionName:  "Calamba",
		PeriodStart: period,
		AlertType:   models.AlertTypeDengue,
		Level:       level,
		Title:       title,
		Message:     "forecast message",
		Value:       value,
	}
}

func TestWeekLabel(t *testing.T) {
	assert.Equal(t, "Week of Jul 07 to Jul 13, 2025", WeekLabel(period))
	assert.Equal(t, "Week of Dec 29, 2025 to Jan 04, 2026", WeekLabel(time.Date(2025, 12, 29, 8, 0, 0, 0, time.UTC)))
}

func TestBuildDisease(t *testing.T) {
	b := BuildDisease(dengue(1, models.LevelModerate, "Moderate Dengue Alert"))

	assert.Equal(t, "PH0403405_2025-07-07_Dengue", b.SourceRef)
	require.NotNil(t, b.AlertID)
	assert.Equal(t, int64(11), *b.AlertID)
	assert.Equal(t, models.FamilyDisease, b.Family)
	assert.Equal(t, "Moderate Dengue Alert: Calamba (PH0403405), Week of Jul 07 to Jul 13, 2025", b.Title)
	assert.Contains(t, b.AdvisoryText, "forecast message")
	assert.Contains(t, b.AdvisoryText, "Forecast: 1 cases")
	assert.True(t, strings.HasPrefix(b.RisksText, "- High fever"))
	assert.Contains(t, b.SafetyTipsText, "mosquito")
	assert.Equal(t, []string{"#Dengue", "#4SStrategy", "#ModerateAlert", "#Calamba", "#EarlyWarning"}, b.Hashtags)
}

func TestBuildWeather(t *testing.T) {
	alerts := []models.Alert{
		{RegionCode: "R1", RegionName: "North", PeriodStart: period, AlertType: models.AlertTypeHeatIndex,
			Level: models.LevelExtremeCaution, Title: "Extreme Caution Heat Index", Message: "m1", Value: 35},
		{RegionCode: "R2", RegionName: "South", PeriodStart: period, AlertType: models.AlertTypeHeatIndex,
			Level: models.LevelDanger, Title: "Danger Heat Index", Message: "m2", Value: 44.3},
		{RegionCode: "R3", RegionName: "East", PeriodStart: period, AlertType: models.AlertTypeHeatIndex,
			Level: models.LevelNormal, Title: "Normal Heat Index", Message: "m3", Value: 20},
	}

	b, err := BuildWeather(period, models.AlertTypeHeatIndex, alerts)
	require.NoError(t, err)
	assert.Equal(t, "weather_2025-07-07_Heat Index", b.SourceRef)
	assert.Nil(t, b.AlertID)
	assert.Equal(t, models.LevelDanger, b.Level)
	assert.Equal(t, "Danger Heat Index: 2 regions, Week of Jul 07 to Jul 13, 2025", b.Title)
	assert.Contains(t, b.AdvisoryText, "- South (R2): 44.3 °C (Danger)\n- North (R1): 35.0 °C (Extreme Caution)")
	assert.NotContains(t, b.AdvisoryText, "East")

	_, err = BuildWeather(period, models.AlertTypeDengue, alerts)
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = BuildWeather(period, models.AlertTypeHeatIndex, alerts[2:])
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestCompose_MediaFailureIsNonFatal(t *testing.T) {
	store := newMemoryStore()
	media := &fakeMedia{fail: map[string]error{mediagen.KindTable: errors.New("renderer down")}}
	objects := &fakeObjects{}
	metrics := observability.NewMetricsForTesting()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 7, 8, 6, 0, 0, 0, time.UTC))

	c := NewComposer(store, logging.NewNop(), metrics,
		WithMedia(media, objects, time.Second), WithClock(clock))

	b, err := c.Compose(context.Background(), dengue(1, models.LevelModerate, "Moderate Dengue Alert"))
	require.NoError(t, err)
	assert.Contains(t, b.Title, "Moderate")
	require.Len(t, b.Attachments, 1)
	assert.Equal(t, "bulletin_charts/map_2025-07-07_Dengue_PH0403405_20250708T060000.000Z.png", b.Attachments[0].StorageKey)
	assert.Equal(t, "Forecast map: Dengue, Week of Jul 07 to Jul 13, 2025", b.Attachments[0].Caption)
	assert.Equal(t, []string{b.Attachments[0].StorageKey}, objects.keys)
	assert.Len(t, media.reqs, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MediaFailures.WithLabelValues(mediagen.KindTable)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BulletinsComposed.WithLabelValues("disease")))
}

func TestCompose_WithoutMediaHasNoAttachments(t *testing.T) {
	c := NewComposer(newMemoryStore(), logging.NewNop(), observability.NewMetricsForTesting())

	b, err := c.Compose(context.Background(), dengue(6, models.LevelSevere, "Severe Dengue Alert"))
	require.NoError(t, err)
	assert.Empty(t, b.Attachments)
	assert.Equal(t, models.LevelSevere, b.Level)
}

func TestCompose_UpsertsBySourceRef(t *testing.T) {
	store := newMemoryStore()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 7, 8, 6, 0, 0, 0, time.UTC))
	c := NewComposer(store, logging.NewNop(), observability.NewMetricsForTesting(), WithClock(clock))

	first, err := c.Compose(context.Background(), dengue(2, models.LevelModerate, "Moderate Dengue Alert"))
	require.NoError(t, err)
	clock.Advance(time.Hour)
	second, err := c.Compose(context.Background(), dengue(4, models.LevelHigh, "High Dengue Alert"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
	assert.Len(t, store.byRef, 1)
	assert.Contains(t, store.byRef[first.SourceRef].Title, "High")
}

func TestCompose_RejectsWeatherAndUnreportable(t *testing.T) {
	store := newMemoryStore()
	c := NewComposer(store, logging.NewNop(), observability.NewMetricsForTesting())

	_, err := c.Compose(context.Background(), dengue(0, models.LevelNone, "No Dengue Alert"))
	assert.ErrorIs(t, err, models.ErrValidation)

	heat := dengue(45, models.LevelDanger, "Danger Heat Index")
	heat.AlertType = models.AlertTypeHeatIndex
	_, err = c.Compose(context.Background(), heat)
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Zero(t, store.calls)
}

func TestComposeWeather_RegionWideCharts(t *testing.T) {
	media := &fakeMedia{}
	objects := &fakeObjects{}
	clock := clockwork.NewFakeClockAt(time.Date(2025, 7, 8, 6, 0, 0, 0, time.UTC))
	c := NewComposer(newMemoryStore(), logging.NewNop(), observability.NewMetricsForTesting(),
		WithMedia(media, objects, time.Second), WithClock(clock))

	alerts := []models.Alert{
		{RegionCode: "R1", PeriodStart: period, AlertType: models.AlertTypeRainfall,
			Level: models.LevelDanger, Title: "Danger Rainfall", Value: 16},
	}
	b, err := c.ComposeWeather(context.Background(), period, models.AlertTypeRainfall, alerts)
	require.NoError(t, err)
	require.Len(t, b.Attachments, 2)
	assert.Equal(t, "bulletin_charts/map_2025-07-07_Rainfall_all_20250708T060000.000Z.png", b.Attachments[0].StorageKey)
	assert.Equal(t, "bulletin_charts/table_2025-07-07_Rainfall_all_20250708T060000.000Z.png", b.Attachments[1].StorageKey)
	require.Len(t, media.reqs, 2)
	assert.Equal(t, "2025-07-07", media.reqs[0].PeriodStart)
	assert.Len(t, media.reqs[0].Regions, 1)
}
