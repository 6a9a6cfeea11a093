package services

import (
	"context"
	"time"

	"github.com/pocketledger/syncengine/internal/models"
	"github.com/pocketledger/syncengine/internal/observability"
	"github.com/pocketledger/syncengine/internal/repository"
)

// ChangeApplier writes pulled changes into the local store
type ChangeApplier struct {
	records repository.RecordRepo
	now     func() time.Time
}

// NewChangeApplier creates a new ChangeApplier
func NewChangeApplier(records repository.RecordRepo) *ChangeApplier {
	return &ChangeApplier{
		records: records,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ApplyTableChanges upserts and soft-deletes one table's changes in a single
// transaction. Applied rows are marked synced. Returns the number of rows touched.
func (a *ChangeApplier) ApplyTableChanges(ctx context.Context, table models.Table, tc models.TableChanges) (int, error) {
	if tc.Len() == 0 {
		return 0, nil
	}

	for _, rec := range tc.Upserted {
		rec.Meta().SetStatus(models.SyncStatusSynced)
	}

	if err := a.records.ApplyChanges(ctx, table, tc.Upserted, tc.Deleted, a.now()); err != nil {
		return 0, &DatabaseError{Op: "apply " + string(table), Err: err}
	}

	observability.WithContext(ctx).WithFields(map[string]interface{}{
		"table":    string(table),
		"upserted": len(tc.Upserted),
		"deleted":  len(tc.Deleted),
	}).Debug("Applied remote changes")

	return tc.Len(), nil
}

// ApplyAll applies every table parents-first and returns the total count.
// A failure stops at that table; earlier tables stay committed.
func (a *ChangeApplier) ApplyAll(ctx context.Context, changes *models.SyncChanges) (int, error) {
	ctx, span := observability.StartServiceSpan(ctx, "ChangeApplier", "ApplyAll")
	defer span.End()

	total := 0
	for _, tc := range changes.Tables() {
		n, err := a.ApplyTableChanges(ctx, tc.Table, tc)
		if err != nil {
			observability.RecordError(span, err)
			return total, err
		}
		total += n
	}

	span.SetAttributes(observability.RecordCount(total))
	observability.SetSuccess(span)
	return total, nil
}
