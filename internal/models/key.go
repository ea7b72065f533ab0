package models

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO date used for period starts in keys and IDs.
const DateLayout = "2006-01-02"

// NoRegionCode replaces an absent region code in composite IDs.
const NoRegionCode = "nocode"

// AlertKey is the composite business key of an Alert.
type AlertKey struct {
	RegionCode  string
	PeriodStart time.Time
	AlertType   AlertType
}

// NewAlertKey normalizes the period to a UTC date and substitutes NoRegionCode
// for an empty region.
func NewAlertKey(regionCode string, periodStart time.Time, alertType AlertType) AlertKey {
	regionCode = strings.TrimSpace(regionCode)
	if regionCode == "" {
		regionCode = NoRegionCode
	}
	return AlertKey{
		RegionCode:  regionCode,
		PeriodStart: TruncateDate(periodStart),
		AlertType:   alertType,
	}
}

// String formats the key as "<regionCode>_<periodStart>_<alertType>".
func (k AlertKey) String() string {
	region := k.RegionCode
	if region == "" {
		region = NoRegionCode
	}
	return fmt.Sprintf("%s_%s_%s", region, k.PeriodStart.Format(DateLayout), k.AlertType)
}

// ValidateRegionCode rejects region codes that would make a composite ID
// impossible to split back into its parts.
func ValidateRegionCode(code string) error {
	if strings.Contains(code, "_") {
		return fmt.Errorf("%w: region code %q must not contain \"_\"", ErrValidation, code)
	}
	return nil
}

// ParseAlertKey is the inverse of AlertKey.String. Anything that does not split
// into exactly three non-empty parts with an ISO date in the middle is rejected.
func ParseAlertKey(id string) (AlertKey, error) {
	parts := strings.Split(id, "_")
	if len(parts) != 3 {
		return AlertKey{}, fmt.Errorf("%w: composite id %q must have 3 parts, got %d", ErrValidation, id, len(parts))
	}
	if parts[0] == "" || parts[2] == "" {
		return AlertKey{}, fmt.Errorf("%w: composite id %q has an empty part", ErrValidation, id)
	}
	date, err := time.Parse(DateLayout, parts[1])
	if err != nil {
		return AlertKey{}, fmt.Errorf("%w: composite id %q has invalid date %q", ErrValidation, id, parts[1])
	}
	return AlertKey{RegionCode: parts[0], PeriodStart: date, AlertType: AlertType(parts[2])}, nil
}

// TruncateDate drops the time of day, keeping the calendar date in UTC.
func TruncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// WeatherRef is the source reference of a region-wide weather bulletin.
func WeatherRef(periodStart time.Time, alertType AlertType) string {
	return fmt.Sprintf("weather_%s_%s", TruncateDate(periodStart).Format(DateLayout), alertType)
}
