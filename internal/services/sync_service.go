package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pocketledger/syncengine/internal/models"
	"github.com/pocketledger/syncengine/internal/observability"
	"github.com/pocketledger/syncengine/internal/repository"
)

const (
	DefaultDebounce  = 2000 * time.Millisecond
	DefaultResetWait = 5 * time.Second

	resetPollInterval = 100 * time.Millisecond
)

// SyncRemote is the backend surface a sync cycle needs
type SyncRemote interface {
	Push(ctx context.Context, req models.PushRequest) (*models.PushResult, error)
	Pull(ctx context.Context, req models.PullRequest) (*models.PullResult, error)
	RegisterDevice(ctx context.Context, req models.RegisterDeviceRequest) (string, error)
}

// SyncOptions configures a SyncService
type SyncOptions struct {
	Platform   models.Platform
	DeviceName string
	Debounce   time.Duration
	ResetWait  time.Duration
	Lifecycle  Lifecycle
	Metrics    *observability.SyncMetrics
}

// SyncService runs push/pull cycles one at a time and publishes SyncState
// transitions to subscribers.
type SyncService struct {
	sessions  SessionProvider
	remote    SyncRemote
	records   repository.RecordRepo
	store     *SyncStore
	collector *ChangeCollector
	applier   *ChangeApplier
	opts      SyncOptions
	logger    *observability.Logger

	mu             sync.Mutex
	state          models.SyncState
	inProgress     bool
	hasPendingSync bool
	generation     uint64
	resets         int
	closed         bool
	webDeviceID    string
	debounceTimer  *time.Timer
	listeners      map[int]func(models.SyncState)
	nextListener   int
	stopForeground func()

	// commitMu orders a cycle's local writes against Reset clearing the store
	commitMu   sync.Mutex
	background sync.WaitGroup
}

// NewSyncService creates a new SyncService
func NewSyncService(
	sessions SessionProvider,
	remote SyncRemote,
	records repository.RecordRepo,
	store *SyncStore,
	opts SyncOptions,
) *SyncService {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.ResetWait <= 0 {
		opts.ResetWait = DefaultResetWait
	}
	if opts.Platform == "" {
		opts.Platform = models.PlatformWeb
	}

	return &SyncService{
		sessions:  sessions,
		remote:    remote,
		records:   records,
		store:     store,
		collector: NewChangeCollector(records),
		applier:   NewChangeApplier(records),
		opts:      opts,
		logger:    observability.GetLogger().WithField("component", "sync"),
		state:     models.InitialSyncState(),
		listeners: make(map[int]func(models.SyncState)),
	}
}

// Initialize loads the persisted device id and watermark into the state and
// starts listening for foreground events.
func (s *SyncService) Initialize(ctx context.Context) error {
	deviceID, err := s.store.DeviceID(ctx)
	if err != nil {
		return err
	}
	lastSyncedAt, err := s.store.LastSyncedAt(ctx)
	if err != nil {
		return err
	}

	s.publish(func(st *models.SyncState) {
		if s.opts.Platform.RequiresRegistration() {
			st.DeviceID = deviceID
		}
		st.LastSyncedAt = lastSyncedAt
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opts.Lifecycle != nil && s.stopForeground == nil {
		s.stopForeground = s.opts.Lifecycle.OnForeground(s.SyncInBackground)
	}

	s.logger.Infof("Sync initialized (platform: %s)", s.opts.Platform)
	return nil
}

// SyncIfAuthenticated runs a cycle when a session exists. Not being signed in
// is not an error.
func (s *SyncService) SyncIfAuthenticated(ctx context.Context) error {
	if s.sessions.CurrentSession(ctx) == nil {
		s.logger.Debug("Skipping sync: not authenticated")
		return nil
	}
	err := s.run(ctx, true)
	if IsAuthenticationError(err) {
		return nil
	}
	return err
}

// SyncInBackground starts SyncIfAuthenticated on a goroutine tracked by Close
func (s *SyncService) SyncInBackground() {
	s.runBackground(func() {
		if err := s.SyncIfAuthenticated(context.Background()); err != nil {
			s.logger.Warnf("Background sync failed: %v", err)
		}
	})
}

// SyncNow runs a cycle unconditionally. A missing session is reported as an
// error state.
func (s *SyncService) SyncNow(ctx context.Context) error {
	return s.run(ctx, false)
}

// ScheduleSyncAfterChange (re)starts the debounce timer. Only the last call
// within the window triggers a sync.
func (s *SyncService) ScheduleSyncAfterChange() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(s.opts.Debounce, func() {
		s.mu.Lock()
		if s.debounceTimer == timer {
			s.debounceTimer = nil
		}
		skip := s.resets > 0 || s.closed
		s.mu.Unlock()
		if skip {
			return
		}
		s.SyncInBackground()
	})
	s.debounceTimer = timer
}

// Subscribe calls listener with the current state and on every transition
// until the returned func is called.
func (s *SyncService) Subscribe(listener func(models.SyncState)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = listener
	snapshot := s.state.Clone()
	s.mu.Unlock()

	listener(snapshot)

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// GetState returns a snapshot of the current state
func (s *SyncService) GetState() models.SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// IsSyncing reports whether a cycle is in flight
func (s *SyncService) IsSyncing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inProgress
}

// Reset cancels in-flight work, waits for it to stop, clears the persisted
// identifiers and returns the state to idle. A cycle still running when the
// wait runs out belongs to an older generation and can no longer write.
func (s *SyncService) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.resets++
	s.generation++
	s.hasPendingSync = false
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
		s.debounceTimer = nil
	}
	s.mu.Unlock()

	if !s.waitIdle(ctx, s.opts.ResetWait) {
		s.logger.Warnf("Sync still running after %s, resetting anyway", s.opts.ResetWait)
	}

	s.commitMu.Lock()
	err := s.store.Clear(ctx)
	s.mu.Lock()
	s.webDeviceID = ""
	s.generation++
	s.resets--
	s.mu.Unlock()
	s.commitMu.Unlock()

	s.publish(func(st *models.SyncState) {
		*st = models.InitialSyncState()
	})

	if err != nil {
		s.logger.Errorf("Failed to clear sync identifiers: %v", err)
		return err
	}
	s.logger.Info("Sync state reset")
	return nil
}

// Close stops timers and foreground listening and waits for background cycles
func (s *SyncService) Close() {
	s.mu.Lock()
	s.closed = true
	s.hasPendingSync = false
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
		s.debounceTimer = nil
	}
	stop := s.stopForeground
	s.stopForeground = nil
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	s.background.Wait()
}

func (s *SyncService) waitIdle(ctx context.Context, limit time.Duration) bool {
	deadline := time.NewTimer(limit)
	defer deadline.Stop()
	ticker := time.NewTicker(resetPollInterval)
	defer ticker.Stop()

	for {
		if !s.IsSyncing() {
			return true
		}
		select {
		case <-ticker.C:
		case <-deadline.C:
			return !s.IsSyncing()
		case <-ctx.Done():
			return false
		}
	}
}

// runBackground runs fn on a goroutine that Close waits for
func (s *SyncService) runBackground(fn func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.background.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.background.Done()
		fn()
	}()
}

// run enforces single flight. A trigger that arrives while a cycle is running
// is folded into at most one follow-up cycle.
func (s *SyncService) run(ctx context.Context, quietAuth bool) error {
	s.mu.Lock()
	if s.closed || s.resets > 0 {
		s.mu.Unlock()
		return nil
	}
	if s.inProgress {
		s.hasPendingSync = true
		s.mu.Unlock()
		s.opts.Metrics.RecordCoalesced(ctx)
		s.logger.Debug("Sync already running, queued another cycle")
		return nil
	}
	s.inProgress = true
	s.hasPendingSync = false
	gen := s.generation
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inProgress = false
		rerun := s.hasPendingSync && s.generation == gen && s.resets == 0 && !s.closed
		s.hasPendingSync = false
		s.mu.Unlock()

		if rerun {
			s.SyncInBackground()
		}
	}()

	start := time.Now()
	pushed, pulled, err := s.safeCycle(ctx, gen)
	duration := time.Since(start)

	outcome := observability.OutcomeSuccess
	switch {
	case err == nil:
		s.logger.WithFields(map[string]interface{}{
			"pushed":      pushed,
			"pulled":      pulled,
			"duration_ms": duration.Milliseconds(),
		}).Info("Sync completed")

	case errors.Is(err, ErrSyncCancelled):
		outcome = observability.OutcomeCancelled
		s.logger.Info("Sync cancelled")
		s.publishFor(gen, func(st *models.SyncState) {
			st.Status = models.StatusIdle
		})
		err = nil

	case quietAuth && IsAuthenticationError(err):
		outcome = observability.OutcomeCancelled
		s.logger.Debugf("Sync skipped: %v", err)
		s.publishFor(gen, func(st *models.SyncState) {
			st.Status = models.StatusIdle
		})

	default:
		outcome = observability.OutcomeError
		s.logger.Errorf("Sync failed: %v", err)
		msg := err.Error()
		s.publishFor(gen, func(st *models.SyncState) {
			st.Status = models.StatusError
			st.Error = &msg
		})
	}
	s.opts.Metrics.RecordCycle(ctx, outcome, duration, pushed, pulled)
	return err
}

// safeCycle turns a panic inside a cycle into an error so the single-flight
// gate is always released.
func (s *SyncService) safeCycle(ctx context.Context, gen uint64) (pushed, pulled int, err error) {
	defer func() {
		if r := recover(); r != nil {
			pushed, pulled = 0, 0
			err = fmt.Errorf("sync cycle panicked: %v", r)
		}
	}()
	return s.cycle(ctx, gen)
}

// cycle pushes pending rows, pulls and applies remote changes, then marks the
// pushed rows synced and advances the watermark. Nothing is marked synced
// unless every earlier step succeeded.
func (s *SyncService) cycle(ctx context.Context, gen uint64) (pushed, pulled int, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "SyncService", "cycle")
	defer span.End()
	defer func() {
		if err != nil {
			observability.RecordError(span, err)
		} else {
			observability.SetSuccess(span)
		}
	}()

	s.publishFor(gen, func(st *models.SyncState) {
		st.Status = models.StatusPushing
		st.Error = nil
	})

	deviceID, err := s.ensureDeviceID(ctx, gen)
	if err != nil {
		return 0, 0, err
	}
	span.SetAttributes(observability.DeviceID(deviceID))
	if err := s.checkCancelled(gen); err != nil {
		return 0, 0, err
	}

	lastSyncedAt, err := s.store.LastSyncedAt(ctx)
	if err != nil {
		return 0, 0, err
	}

	local, err := s.collector.CollectLocalChanges(ctx)
	if err != nil {
		return 0, 0, err
	}

	pushed = local.Changes.Total()
	if pushed > 0 {
		observability.AddEvent(span, "push", observability.RecordCount(pushed))
		result, err := s.remote.Push(ctx, models.PushRequest{
			DeviceID:     deviceID,
			LastSyncedAt: lastSyncedAt,
			Changes:      local.Changes,
		})
		if err != nil {
			return 0, 0, err
		}
		s.logger.Debugf("Pushed %d changes (server upserted %d, deleted %d)",
			pushed, result.Counts.Upserted, result.Counts.Deleted)
	}
	if err := s.checkCancelled(gen); err != nil {
		return 0, 0, err
	}

	s.publishFor(gen, func(st *models.SyncState) {
		st.Status = models.StatusPulling
	})

	observability.AddEvent(span, "pull")
	remote, err := s.remote.Pull(ctx, models.PullRequest{
		DeviceID:     deviceID,
		LastSyncedAt: lastSyncedAt,
	})
	if err != nil {
		return 0, 0, err
	}

	pulled, err = s.commit(ctx, gen, remote, local.IDs)
	if err != nil {
		return 0, 0, err
	}

	syncedAt := remote.SyncedAt
	s.publishFor(gen, func(st *models.SyncState) {
		st.Status = models.StatusSuccess
		st.LastSyncedAt = &syncedAt
		st.Error = nil
		st.LastPushCount = pushed
		st.LastPullCount = pulled
	})
	return pushed, pulled, nil
}

// commit applies the pulled changes, marks the pushed rows synced and stores
// the new watermark. It runs under commitMu so Reset cannot clear the store
// halfway through.
func (s *SyncService) commit(ctx context.Context, gen uint64, remote *models.PullResult, pushedIDs models.PushedIDs) (int, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	if err := s.checkCancelled(gen); err != nil {
		return 0, err
	}
	pulled, err := s.applier.ApplyAll(ctx, &remote.Changes)
	if err != nil {
		return 0, err
	}
	if err := s.checkCancelled(gen); err != nil {
		return 0, err
	}
	if err := s.records.MarkSynced(ctx, pushedIDs); err != nil {
		return 0, &DatabaseError{Op: "mark synced", Err: err}
	}
	if err := s.store.SetLastSyncedAt(ctx, remote.SyncedAt); err != nil {
		return 0, err
	}
	return pulled, nil
}

// ensureDeviceID returns the persisted device id, registering one first if
// needed. Web gets an in-memory pseudo id instead.
func (s *SyncService) ensureDeviceID(ctx context.Context, gen uint64) (string, error) {
	if !s.opts.Platform.RequiresRegistration() {
		s.mu.Lock()
		if s.generation != gen {
			s.mu.Unlock()
			return "", ErrSyncCancelled
		}
		if s.webDeviceID == "" {
			s.webDeviceID = models.NewWebDeviceID()
		}
		id := s.webDeviceID
		s.mu.Unlock()

		s.publishFor(gen, func(st *models.SyncState) { st.DeviceID = &id })
		return id, nil
	}

	existing, err := s.store.DeviceID(ctx)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return *existing, nil
	}

	req, err := models.NewRegisterDeviceRequest(s.opts.Platform, s.opts.DeviceName)
	if err != nil {
		return "", &DeviceRegistrationError{Err: err}
	}
	id, err := s.remote.RegisterDevice(ctx, *req)
	if err != nil {
		return "", err
	}
	if err := s.storeDeviceID(ctx, gen, id); err != nil {
		return "", err
	}

	s.logger.WithField("device_id", id).Info("Registered device")
	s.publishFor(gen, func(st *models.SyncState) { st.DeviceID = &id })
	return id, nil
}

func (s *SyncService) storeDeviceID(ctx context.Context, gen uint64, id string) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	if err := s.checkCancelled(gen); err != nil {
		return err
	}
	return s.store.SetDeviceID(ctx, id)
}

// checkCancelled fails once a Reset has started after the cycle of
// generation gen began.
func (s *SyncService) checkCancelled(gen uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resets > 0 || s.generation != gen {
		return ErrSyncCancelled
	}
	return nil
}

// publish applies mutate to the state and notifies listeners outside the lock
func (s *SyncService) publish(mutate func(st *models.SyncState)) {
	s.mu.Lock()
	mutate(&s.state)
	s.notifyLocked()
}

// publishFor is publish on behalf of the cycle of generation gen. A cycle
// that a Reset has overtaken publishes nothing.
func (s *SyncService) publishFor(gen uint64, mutate func(st *models.SyncState)) {
	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return
	}
	mutate(&s.state)
	s.notifyLocked()
}

// notifyLocked must be called with mu held and releases it
func (s *SyncService) notifyLocked() {
	snapshot := s.state.Clone()
	listeners := make([]func(models.SyncState), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(snapshot.Clone())
	}
}
