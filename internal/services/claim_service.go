package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pocketledger/syncengine/internal/models"
	"github.com/pocketledger/syncengine/internal/observability"
	"github.com/pocketledger/syncengine/internal/repository"
)

// ClaimService assigns rows created before sign-in to the signed-in user
type ClaimService struct {
	records repository.RecordRepo
}

// NewClaimService creates a new ClaimService
func NewClaimService(records repository.RecordRepo) *ClaimService {
	return &ClaimService{records: records}
}

// ClaimAnonymousData sets userID on every ownerless row and flags it pending
// so the next sync pushes it. Tables are claimed concurrently. Running it
// again is a no-op.
func (s *ClaimService) ClaimAnonymousData(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, &AuthenticationError{Reason: "claim requires a user id"}
	}

	ctx, span := observability.StartServiceSpan(ctx, "ClaimService", "ClaimAnonymousData")
	defer span.End()

	var (
		wg      sync.WaitGroup
		claimed atomic.Int64
		errMu   sync.Mutex
		errs    []error
	)

	for _, table := range models.SyncOrder {
		wg.Add(1)
		go func(table models.Table) {
			defer wg.Done()
			n, err := s.records.ClaimAnonymous(ctx, table, userID)
			if err != nil {
				errMu.Lock()
				errs = append(errs, &DatabaseError{Op: "claim " + string(table), Err: err})
				errMu.Unlock()
				return
			}
			claimed.Add(n)
		}(table)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		observability.RecordError(span, err)
		return claimed.Load(), err
	}

	total := claimed.Load()
	if total > 0 {
		observability.Infof("Claimed %d anonymous rows for user %s", total, userID)
	}
	span.SetAttributes(observability.RecordCount(int(total)))
	observability.SetSuccess(span)
	return total, nil
}
