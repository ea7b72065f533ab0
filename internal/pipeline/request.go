package pipeline

import (
	"fmt"
	"strings"
	"time"

	"alert-bulletin-service/internal/models"
)

// RegionForecast is one forecast value inside a batch.
type RegionForecast struct {
	RegionCode string  `json:"region_code"`
	RegionName string  `json:"region_name"`
	Value      float64 `json:"value"`
}

// RunRequest is one batch of forecasts for a single (period, alert type),
// plus the channel groups every resulting bulletin goes out to.
type RunRequest struct {
	PipelineName string                  `json:"pipeline_name"`
	PeriodStart  string                  `json:"period_start" binding:"required"`
	AlertType    models.AlertType        `json:"alert_type" binding:"required"`
	Regions      []RegionForecast        `json:"regions"`
	Channels     []models.ChannelRequest `json:"channels"`
	InitiatedBy  string                  `json:"initiated_by"`
}

// Period parses the ISO period start date.
func (r RunRequest) Period() (time.Time, error) {
	t, err := time.Parse(models.DateLayout, strings.TrimSpace(r.PeriodStart))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid period_start %q", models.ErrValidation, r.PeriodStart)
	}
	return t, nil
}

// Name defaults the pipeline name from the alert type.
func (r RunRequest) Name() string {
	if r.PipelineName != "" {
		return r.PipelineName
	}
	return strings.ToLower(strings.ReplaceAll(string(r.AlertType), " ", "_")) + "_alerts"
}

// Validate checks the batch envelope. Individual region values are checked
// during classification.
func (r RunRequest) Validate() error {
	if _, err := r.Period(); err != nil {
		return err
	}
	if r.AlertType.Family() == "" {
		return fmt.Errorf("%w: unknown alert type %q", models.ErrValidation, r.AlertType)
	}
	for _, ch := range r.Channels {
		if !ch.Channel.Valid() {
			return fmt.Errorf("%w: unknown channel %q", models.ErrValidation, ch.Channel)
		}
		if strings.TrimSpace(ch.Group) == "" {
			return fmt.Errorf("%w: channel %s has no recipient group", models.ErrValidation, ch.Channel)
		}
	}
	return nil
}

// Forecasts expands the batch into forecast values.
func (r RunRequest) Forecasts(period time.Time) []models.ForecastValue {
	out := make([]models.ForecastValue, 0, len(r.Regions))
	for _, region := range r.Regions {
		out = append(out, models.ForecastValue{
			RegionCode:  region.RegionCode,
			RegionName:  region.RegionName,
			PeriodStart: period,
			AlertType:   r.AlertType,
			Value:       region.Value,
		})
	}
	return out
}
