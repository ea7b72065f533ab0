package bulletin

import (
	"strings"

	"alert-bulletin-service/internal/models"
)

type guidance struct {
	risks      []string
	safetyTips []string
	hashtags   []string
}

// catalogue holds the static health and safety guidance per alert type.
var catalogue = map[models.AlertType]guidance{
	models.AlertTypeDengue: {
		risks: []string{
			"High fever, severe headache and pain behind the eyes",
			"Muscle and joint pain, nausea and skin rash",
			"Severe dengue can cause bleeding, organ impairment and shock",
		},
		safetyTips: []string{
			"Empty, clean or cover containers that hold water at least once a week",
			"Use mosquito repellent and wear long sleeves during daytime",
			"Install screens on windows and sleep under mosquito nets",
			"Seek consultation early if fever lasts for two days or more",
		},
		hashtags: []string{"#Dengue", "#4SStrategy"},
	},
	models.AlertTypeDiarrhea: {
		risks: []string{
			"Dehydration, especially among children and older adults",
			"Spread through contaminated water and food",
		},
		safetyTips: []string{
			"Drink only safe water; boil it when in doubt",
			"Wash hands with soap before eating and after using the toilet",
			"Cook food thoroughly and keep it covered",
			"Give oral rehydration solution at the first sign of diarrhea",
		},
		hashtags: []string{"#Diarrhea", "#SafeWater"},
	},
	models.AlertTypeHeatIndex: {
		risks: []string{
			"Heat cramps and heat exhaustion with prolonged exposure",
			"Heat stroke at extreme levels",
		},
		safetyTips: []string{
			"Drink plenty of water even when not thirsty",
			"Limit outdoor activity between 10 AM and 4 PM",
			"Wear light, loose clothing and use shade or umbrellas",
			"Check on children, older adults and people with illnesses",
		},
		hashtags: []string{"#HeatIndex", "#BeatTheHeat"},
	},
	models.AlertTypeRainfall: {
		risks: []string{
			"Flooding in low-lying and poorly drained areas",
			"Landslides in mountainous areas",
			"Leptospirosis and waterborne diseases after floods",
		},
		safetyTips: []string{
			"Monitor local advisories and prepare an emergency kit",
			"Avoid wading through flood water",
			"Move to higher ground when advised",
		},
		hashtags: []string{"#Rainfall", "#FloodReady"},
	},
	models.AlertTypeWindSpeed: {
		risks: []string{
			"Damage to light structures and falling debris",
			"Power interruptions and rough seas",
		},
		safetyTips: []string{
			"Secure loose objects outside your home",
			"Stay indoors and away from windows during strong winds",
			"Small sea craft should not venture out",
		},
		hashtags: []string{"#WindSpeed", "#StaySafe"},
	},
}

func bullets(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return "- " + strings.Join(items, "\n- ")
}

// RisksText returns the risk section for an alert type.
func RisksText(t models.AlertType) string {
	return bullets(catalogue[t].risks)
}

// SafetyTipsText returns the safety tips section for an alert type.
func SafetyTipsText(t models.AlertType) string {
	return bullets(catalogue[t].safetyTips)
}

func hashtags(t models.AlertType, level models.AlertLevel, extra ...string) []string {
	tags := append([]string{}, catalogue[t].hashtags...)
	tags = append(tags, "#"+compact(string(level))+"Alert")
	for _, e := range extra {
		if c := compact(e); c != "" {
			tags = append(tags, "#"+c)
		}
	}
	return append(tags, "#EarlyWarning")
}

// compact strips everything but letters and digits.
func compact(s string) string {
	var b strings.Builder
	for _, r := range s {
		if ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
