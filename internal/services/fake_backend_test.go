package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pocketledger/syncengine/internal/models"
	"github.com/pocketledger/syncengine/internal/repository"
)

const testToken = "test-token"

// fakeBackend records every call and serves configurable responses
type fakeBackend struct {
	mu        sync.Mutex
	pushes    []models.PushRequest
	pulls     []models.PullRequest
	registers []models.RegisterDeviceRequest

	pullChanges models.SyncChanges
	syncedAt    string
	pullStatus  int
	pushStatus  int
	// when set, pull answers with this body verbatim
	pullBody string

	// when set, push blocks until pushGate is closed
	pushGate    chan struct{}
	pushStarted chan struct{}
}

func newFakeBackend(t *testing.T) (*fakeBackend, *httptest.Server) {
	t.Helper()
	b := &fakeBackend{
		pullChanges: models.NewSyncChanges(),
		syncedAt:    "2024-06-01T12:00:00.000Z",
	}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+testToken {
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(models.ErrorResponse{Error: "invalid token"})
				return
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Post(PathRegisterDevice, b.handleRegister)
	r.Post(PathPush, b.handlePush)
	r.Post(PathPull, b.handlePull)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return b, srv
}

func (b *fakeBackend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	b.mu.Lock()
	b.registers = append(b.registers, req)
	b.mu.Unlock()

	json.NewEncoder(w).Encode(models.RegisterDeviceResponse{Data: &models.RegisteredDevice{ID: "device-" + uuid.New().String()}})
}

func (b *fakeBackend) handlePush(w http.ResponseWriter, r *http.Request) {
	req := models.PushRequest{Changes: models.NewSyncChanges()}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	b.pushes = append(b.pushes, req)
	gate, started, status, syncedAt := b.pushGate, b.pushStarted, b.pushStatus, b.syncedAt
	b.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if status != 0 {
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(models.ErrorResponse{Error: "push rejected"})
		return
	}

	json.NewEncoder(w).Encode(models.PushResponse{Data: &models.PushResult{
		SyncedAt: syncedAt,
		Counts:   models.PushCounts{Upserted: 0, Deleted: 0},
	}})
}

func (b *fakeBackend) handlePull(w http.ResponseWriter, r *http.Request) {
	var req models.PullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	b.pulls = append(b.pulls, req)
	status, changes, syncedAt, body := b.pullStatus, b.pullChanges, b.syncedAt, b.pullBody
	b.mu.Unlock()

	if body != "" {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
		return
	}
	if status != 0 {
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(models.ErrorResponse{Error: "pull exploded"})
		return
	}

	json.NewEncoder(w).Encode(models.PullResponse{Data: &models.PullResult{
		SyncedAt: syncedAt,
		Changes:  changes,
	}})
}

func (b *fakeBackend) pushCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pushes)
}

func (b *fakeBackend) pullCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pulls)
}

func (b *fakeBackend) lastPush() models.PushRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pushes[len(b.pushes)-1]
}

func (b *fakeBackend) pull(i int) models.PullRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pulls[i]
}

func (b *fakeBackend) registered() []models.RegisterDeviceRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.RegisterDeviceRequest(nil), b.registers...)
}

func (b *fakeBackend) set(fn func(b *fakeBackend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

type syncHarness struct {
	db      *sql.DB
	records *repository.RecordRepository
	store   *SyncStore
	backend *fakeBackend
	session *StaticSession
	svc     *SyncService
}

func setupSyncTest(t *testing.T, opts SyncOptions) *syncHarness {
	t.Helper()

	db, err := repository.NewSQLiteDB(filepath.Join(t.TempDir(), "sync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	backend, srv := newFakeBackend(t)
	records := repository.NewRecordRepository(db)
	store := NewSyncStore(repository.NewKeyValueRepository(db))
	session := NewStaticSession("user-1", testToken)

	if opts.Platform == "" {
		opts.Platform = models.PlatformIOS
		opts.DeviceName = "test phone"
	}
	svc := NewSyncService(session, NewRemoteClient(srv.URL, session, 5*time.Second), records, store, opts)
	t.Cleanup(svc.Close)

	return &syncHarness{
		db:      db,
		records: records,
		store:   store,
		backend: backend,
		session: session,
		svc:     svc,
	}
}

func newTestCategory(name string) *models.Category {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.Category{
		ID:        uuid.New().String(),
		Name:      name,
		Kind:      "expense",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newTestTransaction(categoryID string, amount float64) *models.Transaction {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.Transaction{
		ID:         uuid.New().String(),
		Amount:     models.Money(amount),
		Kind:       "expense",
		CategoryID: &categoryID,
		OccurredAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// saveSynced writes rec as if it had already been synced
func saveSynced(t *testing.T, h *syncHarness, rec models.Record) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.records.Save(ctx, rec))
	require.NoError(t, h.records.MarkSynced(ctx, models.PushedIDs{rec.TableName(): {rec.RecordID()}}))
}

// resetting reports whether a Reset is between cancelling and clearing
func (h *syncHarness) resetting() bool {
	h.svc.mu.Lock()
	defer h.svc.mu.Unlock()
	return h.svc.resets > 0
}

func (h *syncHarness) syncStatus(t *testing.T, table models.Table, id string) string {
	t.Helper()
	var status sql.NullString
	require.NoError(t, h.db.QueryRow(`SELECT sync_status FROM `+string(table)+` WHERE id = ?`, id).Scan(&status))
	return status.String
}

func (h *syncHarness) count(t *testing.T, table models.Table) int {
	t.Helper()
	var n int
	require.NoError(t, h.db.QueryRow(`SELECT COUNT(*) FROM `+string(table)).Scan(&n))
	return n
}
