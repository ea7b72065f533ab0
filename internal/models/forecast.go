package models

import "time"

// ForecastValue is one predicted value for a region and period, as produced by
// the forecasting model.
type ForecastValue struct {
	RegionCode  string    `json:"region_code"`
	RegionName  string    `json:"region_name"`
	PeriodStart time.Time `json:"period_start"`
	AlertType   AlertType `json:"alert_type"`
	Value       float64   `json:"value"`
}
