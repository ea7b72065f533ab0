package classifier

import (
	"fmt"

	"alert-bulletin-service/internal/models"
)

// Rule is one severity band. A value matches when value >= MinValue and, for
// a rule with ExclusiveBelow set, value < UpperBound.
type Rule struct {
	MinValue        float64
	ExclusiveBelow  bool
	UpperBound      float64
	Level           models.AlertLevel
	TitleTemplate   string
	MessageTemplate string
}

func (r Rule) matches(v float64) bool {
	if v < r.MinValue {
		return false
	}
	if r.ExclusiveBelow && v >= r.UpperBound {
		return false
	}
	return true
}

// Table is an ordered rule list, highest MinValue first, ending in a catch-all.
type Table []Rule

// validate checks ordering and the terminal catch-all of the table.
func (t Table) validate(alertType models.AlertType) error {
	if len(t) == 0 {
		return fmt.Errorf("%w: no rules for alert type %q", models.ErrConfiguration, alertType)
	}
	for i := 1; i < len(t); i++ {
		if t[i].MinValue > t[i-1].MinValue {
			return fmt.Errorf("%w: rules for %q are not sorted by descending min value at index %d",
				models.ErrConfiguration, alertType, i)
		}
	}
	last := t[len(t)-1]
	if last.MinValue != 0 || last.Level.Reportable() {
		return fmt.Errorf("%w: last rule for %q must be a non-reportable catch-all at 0",
			models.ErrConfiguration, alertType)
	}
	return nil
}

// Tables maps each alert type to its rule table.
type Tables map[models.AlertType]Table

// below1 is the boundary rule of case-count tables: it only matches counts
// strictly below one, so a count of exactly 1 always reaches the first real band.
func below1(level models.AlertLevel) Rule {
	return Rule{
		MinValue:        0,
		ExclusiveBelow:  true,
		UpperBound:      1,
		Level:           level,
		TitleTemplate:   "No {type} Alert",
		MessageTemplate: "No {type} cases are expected in {region} for the coming week.",
	}
}

// DefaultTables returns the production rule set.
func DefaultTables() Tables {
	return Tables{
		models.AlertTypeDengue: {
			{MinValue: 6, Level: models.LevelSevere,
				TitleTemplate:   "Severe Dengue Alert",
				MessageTemplate: "{value} dengue cases are forecast in {region}. Immediate vector control and case management are required."},
			{MinValue: 3, Level: models.LevelHigh,
				TitleTemplate:   "High Dengue Alert",
				MessageTemplate: "{value} dengue cases are forecast in {region}. Intensify search-and-destroy of mosquito breeding sites."},
			{MinValue: 1, Level: models.LevelModerate,
				TitleTemplate:   "Moderate Dengue Alert",
				MessageTemplate: "{value} dengue case(s) forecast in {region}. Keep surroundings free of standing water."},
			below1(models.LevelNone),
		},
		models.AlertTypeDiarrhea: {
			{MinValue: 20, Level: models.LevelSevere,
				TitleTemplate:   "Severe Diarrhea Alert",
				MessageTemplate: "{value} diarrhea cases are forecast in {region}. Activate outbreak response for water and food safety."},
			{MinValue: 10, Level: models.LevelHigh,
				TitleTemplate:   "High Diarrhea Alert",
				MessageTemplate: "{value} diarrhea cases are forecast in {region}. Check water sources and food handling."},
			{MinValue: 5, Level: models.LevelModerate,
				TitleTemplate:   "Moderate Diarrhea Alert",
				MessageTemplate: "{value} diarrhea cases are forecast in {region}. Reinforce handwashing and safe water messaging."},
			{MinValue: 1, Level: models.LevelLow,
				TitleTemplate:   "Low Diarrhea Alert",
				MessageTemplate: "{value} diarrhea case(s) forecast in {region}. Maintain routine surveillance."},
			below1(models.LevelNone),
		},
		models.AlertTypeHeatIndex: {
			{MinValue: 52, Level: models.LevelExtremeDanger,
				TitleTemplate:   "Extreme Danger Heat Index",
				MessageTemplate: "Heat index of {value}°C forecast in {region}. Heat stroke is highly likely with continued exposure."},
			{MinValue: 42, Level: models.LevelDanger,
				TitleTemplate:   "Danger Heat Index",
				MessageTemplate: "Heat index of {value}°C forecast in {region}. Heat cramps and exhaustion are likely."},
			{MinValue: 33, Level: models.LevelExtremeCaution,
				TitleTemplate:   "Extreme Caution Heat Index",
				MessageTemplate: "Heat index of {value}°C forecast in {region}. Heat cramps and exhaustion are possible."},
			{MinValue: 0, Level: models.LevelNormal,
				TitleTemplate:   "Normal Heat Index",
				MessageTemplate: "Heat index of {value}°C forecast in {region}."},
		},
		models.AlertTypeRainfall: {
			{MinValue: 30, Level: models.LevelExtremeDanger,
				TitleTemplate:   "Extreme Danger Rainfall",
				MessageTemplate: "{value} mm of rainfall forecast in {region}. Serious flooding is expected in low-lying areas."},
			{MinValue: 15, Level: models.LevelDanger,
				TitleTemplate:   "Danger Rainfall",
				MessageTemplate: "{value} mm of rainfall forecast in {region}. Flooding is threatening."},
			{MinValue: 7.5, Level: models.LevelExtremeCaution,
				TitleTemplate:   "Extreme Caution Rainfall",
				MessageTemplate: "{value} mm of rainfall forecast in {region}. Flooding is possible."},
			{MinValue: 0, Level: models.LevelNormal,
				TitleTemplate:   "Normal Rainfall",
				MessageTemplate: "{value} mm of rainfall forecast in {region}."},
		},
		models.AlertTypeWindSpeed: {
			{MinValue: 118, Level: models.LevelExtremeDanger,
				TitleTemplate:   "Extreme Danger Wind Speed",
				MessageTemplate: "Winds of {value} km/h forecast in {region}. Heavy damage to structures is expected."},
			{MinValue: 62, Level: models.LevelDanger,
				TitleTemplate:   "Danger Wind Speed",
				MessageTemplate: "Winds of {value} km/h forecast in {region}. Moderate to heavy damage is possible."},
			{MinValue: 39, Level: models.LevelExtremeCaution,
				TitleTemplate:   "Extreme Caution Wind Speed",
				MessageTemplate: "Winds of {value} km/h forecast in {region}. Minimal to minor damage is possible."},
			{MinValue: 0, Level: models.LevelNormal,
				TitleTemplate:   "Normal Wind Speed",
				MessageTemplate: "Winds of {value} km/h forecast in {region}."},
		},
	}
}
