package services

import (
	"context"

	"github.com/pocketledger/syncengine/internal/models"
	"github.com/pocketledger/syncengine/internal/observability"
	"github.com/pocketledger/syncengine/internal/repository"
)

// ChangeCollector gathers the pending rows of every syncable table
type ChangeCollector struct {
	records repository.RecordRepo
}

// NewChangeCollector creates a new ChangeCollector
func NewChangeCollector(records repository.RecordRepo) *ChangeCollector {
	return &ChangeCollector{records: records}
}

// CollectLocalChanges reads every pending row and splits it into upserts and
// deletes. It does not write.
func (c *ChangeCollector) CollectLocalChanges(ctx context.Context) (*models.SyncChangesWithIDs, error) {
	ctx, span := observability.StartServiceSpan(ctx, "ChangeCollector", "CollectLocalChanges")
	defer span.End()

	out := &models.SyncChangesWithIDs{
		Changes: models.NewSyncChanges(),
		IDs:     models.PushedIDs{},
	}

	for _, table := range models.SyncOrder {
		records, err := c.records.PendingRecords(ctx, table)
		if err != nil {
			dbErr := &DatabaseError{Op: "collect " + string(table), Err: err}
			observability.RecordError(span, dbErr)
			return nil, dbErr
		}

		tc, ids := SplitChanges(table, records)
		if err := out.Changes.Put(tc); err != nil {
			return nil, &DatabaseError{Op: "collect " + string(table), Err: err}
		}
		if len(ids) > 0 {
			out.IDs[table] = ids
		}
	}

	observability.SetSuccess(span)
	return out, nil
}

// SplitChanges sorts pending rows into upserts and deletes. A tombstone always
// goes to deleted, whatever else changed on the row. ids lists every row in
// input order.
func SplitChanges(table models.Table, records []models.Record) (models.TableChanges, []string) {
	tc := models.TableChanges{
		Table:    table,
		Upserted: []models.Record{},
		Deleted:  []string{},
	}
	ids := make([]string, 0, len(records))

	for _, rec := range records {
		ids = append(ids, rec.RecordID())
		if rec.Meta().IsDeleted() {
			tc.Deleted = append(tc.Deleted, rec.RecordID())
			continue
		}
		tc.Upserted = append(tc.Upserted, rec)
	}
	return tc, ids
}
