package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"alert-bulletin-service/internal/models"
)

const alertColumns = `id, region_code, region_name, period_start, alert_type, level, title, message, value, created_at, updated_at`

// UpsertAlerts replaces the stored alert set of one (period, alert type) with
// alerts: rows whose key is missing from alerts are deleted, every incoming
// row is inserted or replaced by its composite key. It returns the persisted
// rows with their store-assigned IDs. Concurrent writers for the same key
// surface as ErrPersistenceConflict.
func (d *DB) UpsertAlerts(ctx context.Context, periodStart time.Time, alertType models.AlertType, alerts []models.Alert) ([]models.Alert, error) {
	period := models.TruncateDate(periodStart)

	incoming := make(map[string]struct{}, len(alerts))
	for _, a := range alerts {
		key := a.Key()
		if !key.PeriodStart.Equal(period) || a.AlertType != alertType {
			return nil, fmt.Errorf("%w: alert %s does not belong to %s/%s",
				models.ErrValidation, key, period.Format(models.DateLayout), alertType)
		}
		if err := models.ValidateRegionCode(key.RegionCode); err != nil {
			return nil, err
		}
		if !a.Level.Reportable() {
			return nil, fmt.Errorf("%w: alert %s has non-reportable level %q", models.ErrValidation, key, a.Level)
		}
		if _, dup := incoming[key.RegionCode]; dup {
			return nil, fmt.Errorf("%w: duplicate alert key %s", models.ErrValidation, key)
		}
		incoming[key.RegionCode] = struct{}{}
	}

	persisted := make([]models.Alert, 0, len(alerts))
	err := d.withTx(ctx, "upsert alerts", func(tx *sql.Tx) error {
		existing, err := lockRegionCodes(ctx, tx, period, alertType)
		if err != nil {
			return err
		}

		var stale []string
		for _, code := range existing {
			if _, keep := incoming[code]; !keep {
				stale = append(stale, code)
			}
		}
		sort.Strings(stale)
		for _, code := range stale {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM alerts WHERE region_code = $1 AND period_start = $2 AND alert_type = $3`,
				code, period, string(alertType)); err != nil {
				return wrapError("delete stale alert", err)
			}
		}

		query := `
	INSERT INTO alerts (
		region_code, region_name, period_start, alert_type, level, title, message, value, created_at, updated_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	ON CONFLICT (region_code, period_start, alert_type) DO UPDATE SET
		region_name = EXCLUDED.region_name,
		level = EXCLUDED.level,
		title = EXCLUDED.title,
		message = EXCLUDED.message,
		value = EXCLUDED.value,
		updated_at = NOW()
	RETURNING id, created_at, updated_at`

		for _, a := range alerts {
			key := a.Key()
			row := a
			row.RegionCode = key.RegionCode
			row.PeriodStart = period
			err := tx.QueryRowContext(ctx, query,
				row.RegionCode,
				row.RegionName,
				row.PeriodStart,
				string(row.AlertType),
				string(row.Level),
				row.Title,
				row.Message,
				row.Value,
			).Scan(&row.ID, &row.CreatedAt, &row.UpdatedAt)
			if err != nil {
				return wrapError("upsert alert "+key.String(), err)
			}
			persisted = append(persisted, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return persisted, nil
}

func lockRegionCodes(ctx context.Context, tx *sql.Tx, period time.Time, alertType models.AlertType) ([]string, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT region_code FROM alerts WHERE period_start = $1 AND alert_type = $2 FOR UPDATE`,
		period, string(alertType))
	if err != nil {
		return nil, wrapError("lock alerts", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, wrapError("scan region code", err)
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("lock alerts", err)
	}
	return codes, nil
}

// AlertFilter narrows ListAlerts. Zero values mean "any".
type AlertFilter struct {
	PeriodStart *time.Time
	AlertType   models.AlertType
	Limit       int
	Offset      int
}

// ListAlerts returns alerts ordered by period (newest first) then region.
func (d *DB) ListAlerts(ctx context.Context, f AlertFilter) ([]models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE 1=1`
	var args []interface{}
	if f.PeriodStart != nil {
		args = append(args, models.TruncateDate(*f.PeriodStart))
		query += fmt.Sprintf(" AND period_start = $%d", len(args))
	}
	if f.AlertType != "" {
		args = append(args, string(f.AlertType))
		query += fmt.Sprintf(" AND alert_type = $%d", len(args))
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit, f.Offset)
	query += fmt.Sprintf(" ORDER BY period_start DESC, region_code LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapError("list alerts", err)
	}
	defer rows.Close()

	var list []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("list alerts", err)
	}
	return list, nil
}

// GetAlert fetches one alert by composite key.
func (d *DB) GetAlert(ctx context.Context, key models.AlertKey) (models.Alert, error) {
	row := d.Conn.QueryRowContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE region_code = $1 AND period_start = $2 AND alert_type = $3`,
		key.RegionCode, key.PeriodStart, string(key.AlertType))
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Alert{}, fmt.Errorf("alert %s: %w", key, models.ErrNotFound)
	}
	return a, err
}

// BulkDeleteResult counts the outcome of DeleteAlerts per input ID.
type BulkDeleteResult struct {
	Deleted      int      `json:"deleted"`
	NotFound     int      `json:"not_found"`
	Malformed    int      `json:"malformed"`
	MalformedIDs []string `json:"malformed_ids,omitempty"`
}

// DeleteAlerts deletes alerts by composite ID. Malformed IDs are counted and
// skipped; they never abort the rest of the batch.
func (d *DB) DeleteAlerts(ctx context.Context, ids []string) (BulkDeleteResult, error) {
	var res BulkDeleteResult
	for _, id := range ids {
		key, err := models.ParseAlertKey(id)
		if err != nil {
			res.Malformed++
			res.MalformedIDs = append(res.MalformedIDs, id)
			continue
		}
		result, err := d.Conn.ExecContext(ctx,
			`DELETE FROM alerts WHERE region_code = $1 AND period_start = $2 AND alert_type = $3`,
			key.RegionCode, key.PeriodStart, string(key.AlertType))
		if err != nil {
			return res, wrapError("delete alert "+id, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return res, wrapError("delete alert "+id, err)
		}
		if n == 0 {
			res.NotFound++
		} else {
			res.Deleted++
		}
	}
	return res, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (models.Alert, error) {
	var a models.Alert
	var alertType, level string
	err := row.Scan(
		&a.ID,
		&a.RegionCode,
		&a.RegionName,
		&a.PeriodStart,
		&alertType,
		&level,
		&a.Title,
		&a.Message,
		&a.Value,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Alert{}, err
		}
		return models.Alert{}, wrapError("scan alert", err)
	}
	a.AlertType = models.AlertType(alertType)
	a.Level = models.AlertLevel(level)
	a.PeriodStart = models.TruncateDate(a.PeriodStart)
	return a, nil
}
