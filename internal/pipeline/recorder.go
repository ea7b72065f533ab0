package pipeline

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"alert-bulletin-service/internal/logging"
	"alert-bulletin-service/internal/models"
)

// RunStore persists pipeline run rows.
type RunStore interface {
	CreateRun(ctx context.Context, run models.RunRecord) error
	FinishRun(ctx context.Context, run models.RunRecord) error
}

// Recorder keeps the audit log of pipeline runs. Write failures are logged
// and never returned, so recording cannot fail a run.
type Recorder struct {
	store  RunStore
	clock  clockwork.Clock
	logger *logging.Logger
}

func NewRecorder(store RunStore, clock clockwork.Clock, logger *logging.Logger) *Recorder {
	return &Recorder{store: store, clock: clock, logger: logger}
}

// Start writes an InProgress row and returns it.
func (r *Recorder) Start(ctx context.Context, name string) models.RunRecord {
	run := models.RunRecord{
		ID:           uuid.New(),
		PipelineName: name,
		RanAt:        r.clock.Now().UTC(),
		Status:       models.RunInProgress,
	}
	if err := r.store.CreateRun(context.WithoutCancel(ctx), run); err != nil {
		r.logger.WithFields(logging.Fields{"run_id": run.ID, "pipeline": name}).
			WithError(err).Error("Failed to record run start")
	}
	return run
}

// Finish writes the final status and counts of run. When the start row is
// missing the final row is inserted instead.
func (r *Recorder) Finish(ctx context.Context, run models.RunRecord) models.RunRecord {
	run.FinishedAt = r.clock.Now().UTC()
	ctx = context.WithoutCancel(ctx)

	err := r.store.FinishRun(ctx, run)
	if errors.Is(err, models.ErrNotFound) {
		err = r.store.CreateRun(ctx, run)
	}
	if err != nil {
		r.logger.WithFields(logging.Fields{"run_id": run.ID, "pipeline": run.PipelineName, "status": run.Status}).
			WithError(err).Error("Failed to record run result")
	}
	return run
}

// RecordRun appends a finished run in one write.
func (r *Recorder) RecordRun(ctx context.Context, name string, status models.RunStatus, counts models.RunCounts) models.RunRecord {
	now := r.clock.Now().UTC()
	run := models.RunRecord{
		ID:           uuid.New(),
		PipelineName: name,
		RanAt:        now,
		Status:       status,
		RunCounts:    counts,
		FinishedAt:   now,
	}
	if err := r.store.CreateRun(context.WithoutCancel(ctx), run); err != nil {
		r.logger.WithFields(logging.Fields{"run_id": run.ID, "pipeline": name}).
			WithError(err).Error("Failed to record run")
	}
	return run
}
