package classifier

import (
	"fmt"
	"math"
	"strings"

	"alert-bulletin-service/internal/models"
)

// Verdict is the outcome of classifying one value.
type Verdict struct {
	Level   models.AlertLevel
	Title   string
	Message string
}

// Classifier evaluates forecast values against per-type threshold tables.
type Classifier struct {
	tables Tables
}

// New validates every table and returns a Classifier over them.
func New(tables Tables) (*Classifier, error) {
	for alertType, table := range tables {
		if err := table.validate(alertType); err != nil {
			return nil, err
		}
	}
	return &Classifier{tables: tables}, nil
}

// NewDefault returns a Classifier over DefaultTables.
func NewDefault() *Classifier {
	c, err := New(DefaultTables())
	if err != nil {
		panic(err)
	}
	return c
}

// Supports reports whether a table exists for the alert type.
func (c *Classifier) Supports(alertType models.AlertType) bool {
	_, ok := c.tables[alertType]
	return ok
}

// Classify returns the verdict of the first rule in table order that matches
// value. Unknown types yield ErrConfiguration; negative, non-finite and
// fractional case counts yield ErrValidation.
func (c *Classifier) Classify(alertType models.AlertType, value float64) (Verdict, error) {
	return c.classify(alertType, value, "the area")
}

func (c *Classifier) classify(alertType models.AlertType, value float64, region string) (Verdict, error) {
	table, ok := c.tables[alertType]
	if !ok {
		return Verdict{}, fmt.Errorf("%w: no threshold table for alert type %q", models.ErrConfiguration, alertType)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return Verdict{}, fmt.Errorf("%w: %s value %v is out of range", models.ErrValidation, alertType, value)
	}
	if alertType.IsCaseCount() && value != math.Trunc(value) {
		return Verdict{}, fmt.Errorf("%w: %s case count %v is not an integer", models.ErrValidation, alertType, value)
	}

	for _, rule := range table {
		if !rule.matches(value) {
			continue
		}
		r := strings.NewReplacer(
			"{value}", alertType.FormatValue(value),
			"{region}", region,
			"{type}", strings.ToLower(string(alertType)),
		)
		return Verdict{
			Level:   rule.Level,
			Title:   r.Replace(rule.TitleTemplate),
			Message: r.Replace(rule.MessageTemplate),
		}, nil
	}
	return Verdict{}, fmt.Errorf("%w: no rule for %s value %v", models.ErrConfiguration, alertType, value)
}

// ClassifyForecast builds an Alert from a forecast value. Region codes
// containing "_" are rejected with ErrValidation.
func (c *Classifier) ClassifyForecast(fv models.ForecastValue) (models.Alert, error) {
	if err := models.ValidateRegionCode(strings.TrimSpace(fv.RegionCode)); err != nil {
		return models.Alert{}, err
	}
	region := fv.RegionName
	if region == "" {
		region = fv.RegionCode
	}
	v, err := c.classify(fv.AlertType, fv.Value, region)
	if err != nil {
		return models.Alert{}, err
	}
	key := models.NewAlertKey(fv.RegionCode, fv.PeriodStart, fv.AlertType)
	return models.Alert{
		RegionCode:  key.RegionCode,
		RegionName:  fv.RegionName,
		PeriodStart: key.PeriodStart,
		AlertType:   fv.AlertType,
		Level:       v.Level,
		Title:       v.Title,
		Message:     v.Message,
		Value:       fv.Value,
	}, nil
}
