package repository

import (
	"context"
	"time"

	"github.com/pocketledger/syncengine/internal/models"
)

// RecordRepo defines local persistence for the syncable tables
type RecordRepo interface {
	PendingRecords(ctx context.Context, table models.Table) ([]models.Record, error)
	GetByID(ctx context.Context, table models.Table, id string) (models.Record, error)
	Save(ctx context.Context, rec models.Record) error
	SoftDelete(ctx context.Context, table models.Table, id string) (bool, error)
	ApplyChanges(ctx context.Context, table models.Table, upserted []models.Record, deleted []string, now time.Time) error
	MarkSynced(ctx context.Context, ids models.PushedIDs) error
	ClaimAnonymous(ctx context.Context, table models.Table, userID string) (int64, error)
}

// KeyValueRepo defines durable storage for small scalars
type KeyValueRepo interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}
