package db

import (
	"context"
	"database/sql"
	"fmt"

	"alert-bulletin-service/internal/models"
)

// CreateRun inserts a pipeline run row.
func (d *DB) CreateRun(ctx context.Context, run models.RunRecord) error {
	query := `
	INSERT INTO pipeline_runs (
		id, pipeline_name, ran_at, status, regions_processed, alerts_generated, bulletins_created, detail, finished_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := d.Conn.ExecContext(ctx, query,
		run.ID, run.PipelineName, run.RanAt, string(run.Status),
		run.RegionsProcessed, run.AlertsGenerated, run.BulletinsCreated, run.Detail,
		sql.NullTime{Time: run.FinishedAt, Valid: !run.FinishedAt.IsZero()})
	if err != nil {
		return wrapError("create pipeline run", err)
	}
	return nil
}

// FinishRun writes the final status and counts of a run started with CreateRun.
func (d *DB) FinishRun(ctx context.Context, run models.RunRecord) error {
	query := `
	UPDATE pipeline_runs
	SET status = $1,
	    regions_processed = $2,
	    alerts_generated = $3,
	    bulletins_created = $4,
	    detail = $5,
	    finished_at = $6
	WHERE id = $7`
	result, err := d.Conn.ExecContext(ctx, query,
		string(run.Status), run.RegionsProcessed, run.AlertsGenerated, run.BulletinsCreated,
		run.Detail, run.FinishedAt, run.ID)
	if err != nil {
		return wrapError("finish pipeline run", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("pipeline run %s: %w", run.ID, models.ErrNotFound)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (d *DB) ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := d.Conn.QueryContext(ctx, `
	SELECT id, pipeline_name, ran_at, status, regions_processed, alerts_generated, bulletins_created, detail, finished_at
	FROM pipeline_runs
	ORDER BY ran_at DESC
	LIMIT $1`, limit)
	if err != nil {
		return nil, wrapError("list pipeline runs", err)
	}
	defer rows.Close()

	var list []models.RunRecord
	for rows.Next() {
		var run models.RunRecord
		var status string
		var finished sql.NullTime
		if err := rows.Scan(&run.ID, &run.PipelineName, &run.RanAt, &status,
			&run.RegionsProcessed, &run.AlertsGenerated, &run.BulletinsCreated, &run.Detail, &finished); err != nil {
			return nil, wrapError("scan pipeline run", err)
		}
		run.Status = models.RunStatus(status)
		if finished.Valid {
			run.FinishedAt = finished.Time
		}
		list = append(list, run)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("list pipeline runs", err)
	}
	return list, nil
}
