package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a pipeline execution.
type RunStatus string

const (
	RunInProgress     RunStatus = "InProgress"
	RunSuccess        RunStatus = "Success"
	RunPartialSuccess RunStatus = "PartialSuccess"
	RunFailed         RunStatus = "Failed"
)

// RunCounts are the per-run counters kept in the audit log.
type RunCounts struct {
	RegionsProcessed int `json:"regions_processed"`
	AlertsGenerated  int `json:"alerts_generated"`
	BulletinsCreated int `json:"bulletins_created"`
}

// RunRecord is one row of the pipeline audit log.
type RunRecord struct {
	ID           uuid.UUID `json:"id"`
	PipelineName string    `json:"pipeline_name"`
	RanAt        time.Time `json:"ran_at"`
	Status       RunStatus `json:"status"`
	RunCounts
	Detail     string    `json:"detail,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}
