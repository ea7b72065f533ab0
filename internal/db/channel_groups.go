package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"alert-bulletin-service/internal/models"
)

// CreateChannelGroup inserts a named recipient group, or replaces the
// recipients of the existing group with the same (channel, name).
func (d *DB) CreateChannelGroup(ctx context.Context, g models.ChannelGroup) (models.ChannelGroup, error) {
	if !g.Channel.Valid() {
		return models.ChannelGroup{}, fmt.Errorf("%w: unknown channel %q", models.ErrValidation, g.Channel)
	}
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	recipients, err := json.Marshal(g.Recipients)
	if err != nil {
		return models.ChannelGroup{}, fmt.Errorf("failed to encode recipients: %w", err)
	}

	query := `
	INSERT INTO channel_groups (id, name, channel, recipients, created_at, updated_at)
	VALUES ($1, $2, $3, $4, NOW(), NOW())
	ON CONFLICT (channel, name) DO UPDATE SET
		recipients = EXCLUDED.recipients,
		updated_at = NOW()
	RETURNING id, created_at, updated_at`

	created := g
	err = d.Conn.QueryRowContext(ctx, query,
		g.ID, g.Name, string(g.Channel), string(recipients),
	).Scan(&created.ID, &created.CreatedAt, &created.UpdatedAt)
	if err != nil {
		return models.ChannelGroup{}, wrapError("create channel group", err)
	}
	return created, nil
}

// GetChannelGroup resolves a group by channel and name.
func (d *DB) GetChannelGroup(ctx context.Context, channel models.Channel, name string) (models.ChannelGroup, error) {
	row := d.Conn.QueryRowContext(ctx, `
	SELECT id, name, channel, recipients, created_at, updated_at
	FROM channel_groups
	WHERE channel = $1 AND name = $2`, string(channel), name)
	g, err := scanChannelGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChannelGroup{}, fmt.Errorf("channel group %s/%s: %w", channel, name, models.ErrNotFound)
	}
	return g, err
}

// ListChannelGroups returns every group ordered by channel and name.
func (d *DB) ListChannelGroups(ctx context.Context) ([]models.ChannelGroup, error) {
	rows, err := d.Conn.QueryContext(ctx, `
	SELECT id, name, channel, recipients, created_at, updated_at
	FROM channel_groups
	ORDER BY channel, name`)
	if err != nil {
		return nil, wrapError("list channel groups", err)
	}
	defer rows.Close()

	var groups []models.ChannelGroup
	for rows.Next() {
		g, err := scanChannelGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("list channel groups", err)
	}
	return groups, nil
}

// DeleteChannelGroup removes a group by ID.
func (d *DB) DeleteChannelGroup(ctx context.Context, id uuid.UUID) error {
	result, err := d.Conn.ExecContext(ctx, `DELETE FROM channel_groups WHERE id = $1`, id)
	if err != nil {
		return wrapError("delete channel group", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("channel group %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func scanChannelGroup(row rowScanner) (models.ChannelGroup, error) {
	var g models.ChannelGroup
	var channel string
	var recipients []byte
	if err := row.Scan(&g.ID, &g.Name, &channel, &recipients, &g.CreatedAt, &g.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ChannelGroup{}, err
		}
		return models.ChannelGroup{}, wrapError("scan channel group", err)
	}
	g.Channel = models.Channel(channel)
	if err := json.Unmarshal(recipients, &g.Recipients); err != nil {
		return models.ChannelGroup{}, fmt.Errorf("failed to decode recipients of group %s: %w", g.Name, err)
	}
	return g, nil
}
