package models

import (
	"fmt"
	"time"
)

// AlertType identifies the forecast variable an alert was classified from.
type AlertType string

const (
	AlertTypeDengue    AlertType = "Dengue"
	AlertTypeDiarrhea  AlertType = "Diarrhea"
	AlertTypeHeatIndex AlertType = "Heat Index"
	AlertTypeRainfall  AlertType = "Rainfall"
	AlertTypeWindSpeed AlertType = "Wind Speed"
)

// Family groups alert types that share a severity scale and a bulletin shape.
type Family string

const (
	FamilyDisease Family = "disease"
	FamilyWeather Family = "weather"
)

// Family returns the alert family. Unknown types report an empty family.
func (t AlertType) Family() Family {
	switch t {
	case AlertTypeDengue, AlertTypeDiarrhea:
		return FamilyDisease
	case AlertTypeHeatIndex, AlertTypeRainfall, AlertTypeWindSpeed:
		return FamilyWeather
	default:
		return ""
	}
}

// IsCaseCount reports whether values of this type are integer case counts.
func (t AlertType) IsCaseCount() bool {
	return t.Family() == FamilyDisease
}

// Unit is the display unit for values of this type.
func (t AlertType) Unit() string {
	switch t {
	case AlertTypeDengue, AlertTypeDiarrhea:
		return "cases"
	case AlertTypeHeatIndex:
		return "°C"
	case AlertTypeRainfall:
		return "mm"
	case AlertTypeWindSpeed:
		return "km/h"
	default:
		return ""
	}
}

// FormatValue renders a value the way it appears in titles and messages.
func (t AlertType) FormatValue(v float64) string {
	if t.IsCaseCount() {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.1f", v)
}

// AlertLevel is a severity verdict. Disease types use None..Severe,
// weather types use Normal..Extreme Danger.
type AlertLevel string

const (
	LevelNone     AlertLevel = "None"
	LevelLow      AlertLevel = "Low"
	LevelModerate AlertLevel = "Moderate"
	LevelHigh     AlertLevel = "High"
	LevelSevere   AlertLevel = "Severe"

	LevelNormal         AlertLevel = "Normal"
	LevelExtremeCaution AlertLevel = "Extreme Caution"
	LevelDanger         AlertLevel = "Danger"
	LevelExtremeDanger  AlertLevel = "Extreme Danger"
)

var levelRank = map[AlertLevel]int{
	LevelNone:     0,
	LevelLow:      1,
	LevelModerate: 2,
	LevelHigh:     3,
	LevelSevere:   4,

	LevelNormal:         0,
	LevelExtremeCaution: 1,
	LevelDanger:         2,
	LevelExtremeDanger:  3,
}

// Rank orders levels within their scale. Unknown levels rank -1.
func (l AlertLevel) Rank() int {
	r, ok := levelRank[l]
	if !ok {
		return -1
	}
	return r
}

// Reportable is false for the "nothing to report" levels.
func (l AlertLevel) Reportable() bool {
	return l.Rank() > 0
}

// Alert is one classified forecast for a (region, period, alert type) triple.
type Alert struct {
	ID          int64      `json:"id,omitempty"`
	RegionCode  string     `json:"region_code"`
	RegionName  string     `json:"region_name"`
	PeriodStart time.Time  `json:"period_start"`
	AlertType   AlertType  `json:"alert_type"`
	Level       AlertLevel `json:"level"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	Value       float64    `json:"value"`
	CreatedAt   time.Time  `json:"created_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at,omitempty"`
}

// Key returns the alert's composite business key.
func (a Alert) Key() AlertKey {
	return NewAlertKey(a.RegionCode, a.PeriodStart, a.AlertType)
}

// CompositeID is the externally addressable identifier of the alert.
func (a Alert) CompositeID() string {
	return a.Key().String()
}
