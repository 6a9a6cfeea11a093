package services

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/pocketledger/syncengine/internal/observability"
)

// SyncScheduler triggers SyncIfAuthenticated on a cron schedule
type SyncScheduler struct {
	schedule string
	sync     *SyncService
	cron     *cron.Cron
	entryID  cron.EntryID
}

// NewSyncScheduler creates a scheduler. An empty schedule disables it.
func NewSyncScheduler(schedule string, sync *SyncService) *SyncScheduler {
	return &SyncScheduler{
		schedule: schedule,
		sync:     sync,
		cron:     cron.New(),
	}
}

// Start registers the job and starts the cron runner
func (s *SyncScheduler) Start() error {
	if s.schedule == "" {
		observability.Info("Sync scheduler is disabled")
		return nil
	}

	id, err := s.cron.AddFunc(s.schedule, s.trigger)
	if err != nil {
		return fmt.Errorf("invalid sync schedule %q: %w", s.schedule, err)
	}
	s.entryID = id
	s.cron.Start()

	observability.Infof("Sync scheduler started (schedule: %s)", s.schedule)
	return nil
}

// Stop stops the runner and waits for a running job to finish
func (s *SyncScheduler) Stop() {
	<-s.cron.Stop().Done()
	observability.Info("Sync scheduler stopped")
}

func (s *SyncScheduler) trigger() {
	if s.sync.IsSyncing() {
		observability.Debug("Sync already running, skipping scheduled run")
		return
	}
	if err := s.sync.SyncIfAuthenticated(context.Background()); err != nil {
		observability.Warnf("Scheduled sync failed: %v", err)
	}
}
