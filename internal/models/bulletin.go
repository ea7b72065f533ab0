package models

import (
	"time"

	"github.com/google/uuid"
)

// Attachment references a chart stored in object storage.
type Attachment struct {
	StorageKey string `json:"storage_key"`
	Caption    string `json:"caption"`
}

// Bulletin is a publishable document derived from one disease alert or from a
// region-wide set of weather alerts. SourceRef is unique.
type Bulletin struct {
	ID             uuid.UUID    `json:"id"`
	SourceRef      string       `json:"source_ref"`
	AlertID        *int64       `json:"alert_id,omitempty"`
	Family         Family       `json:"family"`
	AlertType      AlertType    `json:"alert_type"`
	Level          AlertLevel   `json:"level"`
	PeriodStart    time.Time    `json:"period_start"`
	Title          string       `json:"title"`
	AdvisoryText   string       `json:"advisory_text"`
	RisksText      string       `json:"risks_text"`
	SafetyTipsText string       `json:"safety_tips_text"`
	Hashtags       []string     `json:"hashtags"`
	Attachments    []Attachment `json:"attachments"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}
