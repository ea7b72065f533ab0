package classifier

import (
	"testing"
	"time"

	"alert-bulletin-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_DengueScenarios(t *testing.T) {
	c := NewDefault()

	cases := []struct {
		value float64
		level models.AlertLevel
	}{
		{0, models.LevelNone},
		{1, models.LevelModerate},
		{2, models.LevelModerate},
		{3, models.LevelHigh},
		{5, models.LevelHigh},
		{6, models.LevelSevere},
		{250, models.LevelSevere},
	}

	for _, tc := range cases {
		v, err := c.Classify(models.AlertTypeDengue, tc.value)
		require.NoError(t, err)
		assert.Equal(t, tc.level, v.Level, "value %v", tc.value)
	}
}

func TestClassify_BoundaryRule(t *testing.T) {
	tables := DefaultTables()
	c := NewDefault()

	for alertType, table := range tables {
		if !alertType.IsCaseCount() {
			continue
		}
		t.Run(string(alertType), func(t *testing.T) {
			firstReal := table[len(table)-2]
			require.Equal(t, float64(1), firstReal.MinValue)

			// Exercise the rule directly: the classifier itself rejects fractional counts.
			boundary := table[len(table)-1]
			assert.True(t, boundary.matches(0.999))
			assert.False(t, boundary.matches(1))

			v, err := c.Classify(alertType, 0)
			require.NoError(t, err)
			assert.False(t, v.Level.Reportable())

			v, err = c.Classify(alertType, 1)
			require.NoError(t, err)
			assert.Equal(t, firstReal.Level, v.Level)
		})
	}
}

func TestClassify_BoundaryRuleFirstInTable(t *testing.T) {
	// A boundary rule listed ahead of the bands must not swallow them.
	table := Table{
		below1(models.LevelNone),
		{MinValue: 1, Level: models.LevelModerate, TitleTemplate: "Moderate"},
	}
	c := &Classifier{tables: Tables{models.AlertTypeDengue: table}}

	v, err := c.Classify(models.AlertTypeDengue, 1)
	require.NoError(t, err)
	assert.Equal(t, models.LevelModerate, v.Level)

	v, err = c.Classify(models.AlertTypeDengue, 0)
	require.NoError(t, err)
	assert.Equal(t, models.LevelNone, v.Level)
}

func TestClassify_Monotonic(t *testing.T) {
	c := NewDefault()

	for alertType := range DefaultTables() {
		t.Run(string(alertType), func(t *testing.T) {
			prev := -1
			for v := 0.0; v <= 200; v += 0.5 {
				if alertType.IsCaseCount() && v != float64(int(v)) {
					continue
				}
				verdict, err := c.Classify(alertType, v)
				require.NoError(t, err)
				rank := verdict.Level.Rank()
				assert.GreaterOrEqual(t, rank, prev, "value %v", v)
				prev = rank
			}
		})
	}
}

func TestClassify_WeatherBands(t *testing.T) {
	c := NewDefault()

	v, err := c.Classify(models.AlertTypeHeatIndex, 32.9)
	require.NoError(t, err)
	assert.Equal(t, models.LevelNormal, v.Level)

	v, err = c.Classify(models.AlertTypeHeatIndex, 42)
	require.NoError(t, err)
	assert.Equal(t, models.LevelDanger, v.Level)
	assert.Contains(t, v.Message, "42.0°C")

	v, err = c.Classify(models.AlertTypeRainfall, 7.5)
	require.NoError(t, err)
	assert.Equal(t, models.LevelExtremeCaution, v.Level)

	v, err = c.Classify(models.AlertTypeWindSpeed, 118)
	require.NoError(t, err)
	assert.Equal(t, models.LevelExtremeDanger, v.Level)
}

func TestClassify_Errors(t *testing.T) {
	c := NewDefault()

	_, err := c.Classify(models.AlertType("Cholera"), 3)
	assert.ErrorIs(t, err, models.ErrConfiguration)

	_, err = c.Classify(models.AlertTypeDengue, -1)
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = c.Classify(models.AlertTypeDengue, 0.5)
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = c.Classify(models.AlertTypeRainfall, -0.1)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestNew_RejectsBadTables(t *testing.T) {
	_, err := New(Tables{models.AlertTypeDengue: {}})
	assert.ErrorIs(t, err, models.ErrConfiguration)

	_, err = New(Tables{models.AlertTypeDengue: {
		{MinValue: 1, Level: models.LevelModerate},
		{MinValue: 6, Level: models.LevelSevere},
		below1(models.LevelNone),
	}})
	assert.ErrorIs(t, err, models.ErrConfiguration)

	_, err = New(Tables{models.AlertTypeDengue: {
		{MinValue: 1, Level: models.LevelModerate},
	}})
	assert.ErrorIs(t, err, models.ErrConfiguration)
}

func TestClassifyForecast(t *testing.T) {
	c := NewDefault()

	alert, err := c.ClassifyForecast(models.ForecastValue{
		RegionCode:  "PH0403405",
		RegionName:  "Calamba",
		PeriodStart: time.Date(2025, 7, 7, 8, 0, 0, 0, time.UTC),
		AlertType:   models.AlertTypeDengue,
		Value:       6,
	})
	require.NoError(t, err)

	assert.Equal(t, models.LevelSevere, alert.Level)
	assert.Equal(t, "Severe Dengue Alert", alert.Title)
	assert.Contains(t, alert.Message, "6 dengue cases")
	assert.Contains(t, alert.Message, "Calamba")
	assert.Equal(t, time.Date(2025, 7, 7, 0, 0, 0, 0, time.UTC), alert.PeriodStart)
	assert.Equal(t, "PH0403405_2025-07-07_Dengue", alert.CompositeID())
}

func TestClassifyForecast_RejectsUnderscoreRegion(t *testing.T) {
	c := NewDefault()

	_, err := c.ClassifyForecast(models.ForecastValue{
		RegionCode:  "TL_DIL",
		PeriodStart: time.Date(2025, 7, 7, 0, 0, 0, 0, time.UTC),
		AlertType:   models.AlertTypeDengue,
		Value:       4,
	})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestSupports(t *testing.T) {
	c, err := New(Tables{models.AlertTypeDengue: DefaultTables()[models.AlertTypeDengue]})
	require.NoError(t, err)

	assert.True(t, c.Supports(models.AlertTypeDengue))
	assert.False(t, c.Supports(models.AlertTypeRainfall))
}
