package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"alert-bulletin-service/internal/models"
)

// UpsertBulletin stores b keyed by its SourceRef: an existing row is updated
// in place and its attachments are replaced wholesale, otherwise a new row is
// inserted. created reports which of the two happened.
func (d *DB) UpsertBulletin(ctx context.Context, b models.Bulletin, now time.Time) (saved models.Bulletin, created bool, err error) {
	if b.SourceRef == "" {
		return models.Bulletin{}, false, fmt.Errorf("%w: bulletin has no source reference", models.ErrValidation)
	}

	err = d.withTx(ctx, "upsert bulletin", func(tx *sql.Tx) error {
		var id uuid.UUID
		var createdAt time.Time
		err := tx.QueryRowContext(ctx,
			`SELECT id, created_at FROM bulletins WHERE source_ref = $1 FOR UPDATE`,
			b.SourceRef).Scan(&id, &createdAt)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			created = true
			id = uuid.New()
			createdAt = now
			_, err = tx.ExecContext(ctx, `
	INSERT INTO bulletins (
		id, source_ref, alert_id, family, alert_type, level, period_start, title,
		advisory_text, risks_text, safety_tips_text, hashtags, created_at, updated_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
				id, b.SourceRef, b.AlertID, string(b.Family), string(b.AlertType), string(b.Level),
				models.TruncateDate(b.PeriodStart), b.Title, b.AdvisoryText, b.RisksText, b.SafetyTipsText,
				strings.Join(b.Hashtags, " "), createdAt, now)
			if err != nil {
				return wrapError("insert bulletin", err)
			}
		case err != nil:
			return wrapError("lookup bulletin", err)
		default:
			_, err = tx.ExecContext(ctx, `
	UPDATE bulletins
	SET alert_id = $1,
	    level = $2,
	    title = $3,
	    advisory_text = $4,
	    risks_text = $5,
	    safety_tips_text = $6,
	    hashtags = $7,
	    updated_at = $8
	WHERE id = $9`,
				b.AlertID, string(b.Level), b.Title, b.AdvisoryText, b.RisksText, b.SafetyTipsText,
				strings.Join(b.Hashtags, " "), now, id)
			if err != nil {
				return wrapError("update bulletin", err)
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM bulletin_attachments WHERE bulletin_id = $1`, id); err != nil {
			return wrapError("clear bulletin attachments", err)
		}
		for i, att := range b.Attachments {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO bulletin_attachments (bulletin_id, position, storage_key, caption) VALUES ($1, $2, $3, $4)`,
				id, i, att.StorageKey, att.Caption); err != nil {
				return wrapError("insert bulletin attachment", err)
			}
		}

		b.ID = id
		b.CreatedAt = createdAt
		b.UpdatedAt = now
		b.PeriodStart = models.TruncateDate(b.PeriodStart)
		return nil
	})
	if err != nil {
		return models.Bulletin{}, false, err
	}
	return b, created, nil
}

// GetBulletin loads a bulletin and its attachments.
func (d *DB) GetBulletin(ctx context.Context, id uuid.UUID) (models.Bulletin, error) {
	var b models.Bulletin
	var alertID sql.NullInt64
	var family, alertType, level, hashtags string
	err := d.Conn.QueryRowContext(ctx, `
	SELECT id, source_ref, alert_id, family, alert_type, level, period_start, title,
	       advisory_text, risks_text, safety_tips_text, hashtags, created_at, updated_at
	FROM bulletins
	WHERE id = $1`, id).Scan(
		&b.ID, &b.SourceRef, &alertID, &family, &alertType, &level, &b.PeriodStart, &b.Title,
		&b.AdvisoryText, &b.RisksText, &b.SafetyTipsText, &hashtags, &b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Bulletin{}, fmt.Errorf("bulletin %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Bulletin{}, wrapError("get bulletin", err)
	}
	if alertID.Valid {
		v := alertID.Int64
		b.AlertID = &v
	}
	b.Family = models.Family(family)
	b.AlertType = models.AlertType(alertType)
	b.Level = models.AlertLevel(level)
	b.PeriodStart = models.TruncateDate(b.PeriodStart)
	b.Hashtags = strings.Fields(hashtags)

	rows, err := d.Conn.QueryContext(ctx,
		`SELECT storage_key, caption FROM bulletin_attachments WHERE bulletin_id = $1 ORDER BY position`, id)
	if err != nil {
		return models.Bulletin{}, wrapError("get bulletin attachments", err)
	}
	defer rows.Close()
	for rows.Next() {
		var att models.Attachment
		if err := rows.Scan(&att.StorageKey, &att.Caption); err != nil {
			return models.Bulletin{}, wrapError("scan bulletin attachment", err)
		}
		b.Attachments = append(b.Attachments, att)
	}
	if err := rows.Err(); err != nil {
		return models.Bulletin{}, wrapError("get bulletin attachments", err)
	}
	return b, nil
}
