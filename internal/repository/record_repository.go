package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pocketledger/syncengine/internal/models"
	"github.com/pocketledger/syncengine/internal/observability"
)

// markSyncedChunk keeps IN lists well under SQLite's bound parameter limit
const markSyncedChunk = 500

// RecordRepository implements RecordRepo for SQLite
type RecordRepository struct {
	db *sql.DB
}

// NewRecordRepository creates a new RecordRepository
func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

func (r *RecordRepository) PendingRecords(ctx context.Context, table models.Table) ([]models.Record, error) {
	def, err := lookupTable(table)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE sync_status = ? ORDER BY id`, def.selectList(), def.table)
	rows, err := r.db.QueryContext(ctx, query, models.SyncStatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		rec, err := def.scan(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *RecordRepository) GetByID(ctx context.Context, table models.Table, id string) (models.Record, error) {
	def, err := lookupTable(table)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, def.selectList(), def.table)
	rec, err := def.scan(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Save writes a local change: the row is stored as given and flagged pending
func (r *RecordRepository) Save(ctx context.Context, rec models.Record) error {
	def, err := lookupTable(rec.TableName())
	if err != nil {
		return err
	}

	rec.Meta().SetStatus(models.SyncStatusPending)
	values, err := def.values(rec)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, def.upsertSQL(), values...)
	return err
}

// SoftDelete tombstones a row locally so the deletion is pushed on the next sync
func (r *RecordRepository) SoftDelete(ctx context.Context, table models.Table, id string) (bool, error) {
	def, err := lookupTable(table)
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	query := fmt.Sprintf(`UPDATE %s SET deleted_at = ?, updated_at = ?, sync_status = ? WHERE id = ? AND deleted_at IS NULL`, def.table)
	result, err := r.db.ExecContext(ctx, query, now, now, models.SyncStatusPending, id)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// ApplyChanges upserts and soft-deletes remote changes for one table inside a
// single transaction. Records are written exactly as given.
func (r *RecordRepository) ApplyChanges(ctx context.Context, table models.Table, upserted []models.Record, deleted []string, now time.Time) (err error) {
	def, err := lookupTable(table)
	if err != nil {
		return err
	}

	ctx, span := observability.StartDBSpan(ctx, "APPLY", string(table))
	defer span.End()
	defer func() { observability.RecordError(span, err) }()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if len(upserted) > 0 {
		stmt, err := tx.PrepareContext(ctx, def.upsertSQL())
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, rec := range upserted {
			values, err := def.values(rec)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, values...); err != nil {
				return fmt.Errorf("upsert %s %s: %w", table, rec.RecordID(), err)
			}
		}
	}

	if len(deleted) > 0 {
		query := fmt.Sprintf(`UPDATE %s SET deleted_at = ?, sync_status = ? WHERE id = ?`, def.table)
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, id := range deleted {
			if _, err := stmt.ExecContext(ctx, now, models.SyncStatusSynced, id); err != nil {
				return fmt.Errorf("delete %s %s: %w", table, id, err)
			}
		}
	}

	return tx.Commit()
}

// MarkSynced clears the pending flag on exactly the given ids, all tables in one transaction
func (r *RecordRepository) MarkSynced(ctx context.Context, ids models.PushedIDs) (err error) {
	if ids.Total() == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, table := range models.SyncOrder {
		tableIDs := ids[table]
		for start := 0; start < len(tableIDs); start += markSyncedChunk {
			end := min(start+markSyncedChunk, len(tableIDs))
			chunk := tableIDs[start:end]

			args := make([]any, 0, len(chunk)+1)
			args = append(args, models.SyncStatusSynced)
			for _, id := range chunk {
				args = append(args, id)
			}

			query := fmt.Sprintf(`UPDATE %s SET sync_status = ? WHERE id IN (%s)`,
				table, strings.TrimSuffix(strings.Repeat("?, ", len(chunk)), ", "))
			if _, err = tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("mark %s synced: %w", table, err)
			}
		}
	}

	return tx.Commit()
}

// ClaimAnonymous assigns every ownerless row to userID and flags it pending
func (r *RecordRepository) ClaimAnonymous(ctx context.Context, table models.Table, userID string) (int64, error) {
	def, err := lookupTable(table)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`UPDATE %s SET user_id = ?, sync_status = ? WHERE user_id IS NULL`, def.table)
	result, err := r.db.ExecContext(ctx, query, userID, models.SyncStatusPending)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
