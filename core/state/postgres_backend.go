package state

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

const (
	selectSnapshotSQL = `SELECT snapshot FROM bot_state WHERE id = 1`
	upsertSnapshotSQL = `INSERT INTO bot_state (id, snapshot, updated_at)
VALUES (1, $1::jsonb, now())
ON CONFLICT (id) DO UPDATE SET snapshot = EXCLUDED.snapshot, updated_at = EXCLUDED.updated_at`
)

// PostgresBackend keeps the snapshot as a single jsonb row in bot_state.
// The table is created by the migrations in the migrations directory.
type PostgresBackend struct {
	db *sqlx.DB
}

// NewPostgresBackend wraps an open connection pool.
func NewPostgresBackend(db *sqlx.DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

// Read returns the stored snapshot or ErrNoSnapshot.
func (b *PostgresBackend) Read(ctx context.Context) ([]byte, error) {
	var raw []byte
	err := b.db.GetContext(ctx, &raw, selectSnapshotSQL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// Write upserts the snapshot row in a single statement.
func (b *PostgresBackend) Write(ctx context.Context, data []byte) error {
	// lib/pq sends []byte as bytea; jsonb needs the text form.
	_, err := b.db.ExecContext(ctx, upsertSnapshotSQL, string(data))
	return err
}
