package repository

import (
	"context"
	"database/sql"
	"time"
)

const (
	KeyDeviceID     = "sync.deviceId"
	KeyLastSyncedAt = "sync.lastSyncedAt"
)

// KeyValueRepository implements KeyValueRepo on the sync_meta table
type KeyValueRepository struct {
	db *sql.DB
}

// NewKeyValueRepository creates a new KeyValueRepository
func NewKeyValueRepository(db *sql.DB) *KeyValueRepository {
	return &KeyValueRepository{db: db}
}

// Get returns the stored value, or "" when the key is absent
func (r *KeyValueRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM sync_meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *KeyValueRepository) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO sync_meta (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query, key, value, time.Now().UTC())
	return err
}

func (r *KeyValueRepository) Remove(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sync_meta WHERE key = ?`, key)
	return err
}
