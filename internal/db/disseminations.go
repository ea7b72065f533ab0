package db

import (
	"context"

	"github.com/google/uuid"

	"alert-bulletin-service/internal/models"
)

// CreateDisseminationRecord appends one channel attempt to the audit trail.
func (d *DB) CreateDisseminationRecord(ctx context.Context, rec models.DisseminationRecord) error {
	query := `
	INSERT INTO dissemination_records (id, bulletin_id, channel, status, details, sent_at, initiated_by)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := d.Conn.ExecContext(ctx, query,
		rec.ID, rec.BulletinID, string(rec.Channel), string(rec.Status), rec.Details, rec.SentAt, rec.InitiatedBy)
	if err != nil {
		return wrapError("create dissemination record", err)
	}
	return nil
}

// ListDisseminationRecords returns the attempts for a bulletin, oldest first.
func (d *DB) ListDisseminationRecords(ctx context.Context, bulletinID uuid.UUID) ([]models.DisseminationRecord, error) {
	rows, err := d.Conn.QueryContext(ctx, `
	SELECT id, bulletin_id, channel, status, details, sent_at, initiated_by
	FROM dissemination_records
	WHERE bulletin_id = $1
	ORDER BY sent_at`, bulletinID)
	if err != nil {
		return nil, wrapError("list dissemination records", err)
	}
	defer rows.Close()

	var list []models.DisseminationRecord
	for rows.Next() {
		var rec models.DisseminationRecord
		var channel, status string
		if err := rows.Scan(&rec.ID, &rec.BulletinID, &channel, &status, &rec.Details, &rec.SentAt, &rec.InitiatedBy); err != nil {
			return nil, wrapError("scan dissemination record", err)
		}
		rec.Channel = models.Channel(channel)
		rec.Status = models.DeliveryStatus(status)
		list = append(list, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("list dissemination records", err)
	}
	return list, nil
}
