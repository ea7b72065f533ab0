package db

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"alert-bulletin-service/internal/models"
)

//go:embed schema.sql
var schema string

// DB is the PostgreSQL store shared by the alert, bulletin, dissemination and
// run repositories. Every method is a single statement or a short transaction.
type DB struct {
	Conn *sql.DB
	pool *pgxpool.Pool
}

func New(dsn string) (*DB, error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	return &DB{Conn: stdlib.OpenDBFromPool(pool), pool: pool}, nil
}

// NewWithConn wraps an existing database handle.
func NewWithConn(conn *sql.DB) *DB {
	return &DB{Conn: conn}
}

// Migrate creates missing tables and indexes.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.Conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (d *DB) Ping(ctx context.Context) error {
	return d.Conn.PingContext(ctx)
}

func (d *DB) Close() error {
	err := d.Conn.Close()
	if d.pool != nil {
		d.pool.Close()
	}
	return err
}

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
)

// wrapError turns unique-constraint and serialization failures into
// ErrPersistenceConflict and wraps everything else with the operation name.
func wrapError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == codeUniqueViolation || pgErr.Code == codeSerializationFailure) {
		return fmt.Errorf("%w: %s: %s", models.ErrPersistenceConflict, op, pgErr.Message)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// withTx runs fn in a transaction, rolling back on error.
func (d *DB) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return wrapError("begin "+op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return wrapError("commit "+op, err)
	}
	return nil
}
