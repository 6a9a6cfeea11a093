package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketledger/syncengine/internal/models"
	"github.com/pocketledger/syncengine/internal/repository"
	"github.com/pocketledger/syncengine/internal/services"
)

const testAPIKey = "local-control-key"

type testServer struct {
	srv     *httptest.Server
	records *repository.RecordRepository
	sync    *services.SyncService
	pulls   *atomic.Int32
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	pulls := &atomic.Int32{}
	backend := chi.NewRouter()
	backend.Post(services.PathPush, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.PushResponse{Data: &models.PushResult{SyncedAt: "2024-01-01T00:00:00Z"}})
	})
	backend.Post(services.PathPull, func(w http.ResponseWriter, r *http.Request) {
		pulls.Add(1)
		json.NewEncoder(w).Encode(models.PullResponse{Data: &models.PullResult{
			SyncedAt: "2024-01-01T00:00:00Z",
			Changes:  models.NewSyncChanges(),
		}})
	})
	backendSrv := httptest.NewServer(backend)
	t.Cleanup(backendSrv.Close)

	db, err := repository.NewSQLiteDB(filepath.Join(t.TempDir(), "control.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	records := repository.NewRecordRepository(db)
	session := services.NewStaticSession("user-1", "token")
	lifecycle := services.NewLifecycleEvents()
	syncService := services.NewSyncService(session,
		services.NewRemoteClient(backendSrv.URL, session, 5*time.Second),
		records,
		services.NewSyncStore(repository.NewKeyValueRepository(db)),
		services.SyncOptions{Platform: models.PlatformWeb, Debounce: time.Hour, Lifecycle: lifecycle},
	)
	require.NoError(t, syncService.Initialize(context.Background()))
	t.Cleanup(syncService.Close)

	hub := services.NewStateHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	t.Cleanup(hub.Attach(syncService))

	claims := services.NewClaimService(records)
	router := NewRouter(RouterConfig{
		Sync:         NewSyncHandler(syncService, claims, records, lifecycle),
		Session:      NewSessionHandler(session, claims, syncService),
		WebSocket:    NewWebSocketHandler(hub, syncService),
		Health:       NewHealthHandler(syncService, hub),
		Version:      NewVersionHandler(models.PlatformWeb),
		APIKey:       testAPIKey,
		APIKeyHeader: "X-API-Key",
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, records: records, sync: syncService, pulls: pulls}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, s.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", testAPIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAPIKeyAuth(t *testing.T) {
	s := setupTestServer(t)

	t.Run("health needs no key", func(t *testing.T) {
		resp, err := http.Get(s.srv.URL + "/api/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var health models.HealthResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
		assert.Equal(t, "healthy", health.Status)
		assert.Equal(t, models.StatusIdle, health.Sync)
	})

	t.Run("missing key", func(t *testing.T) {
		resp, err := http.Get(s.srv.URL + "/api/sync/state")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("wrong key", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, s.srv.URL+"/api/sync/state", nil)
		req.Header.Set("X-API-Key", "nope")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestVersionHandler(t *testing.T) {
	s := setupTestServer(t)

	resp := s.do(t, http.MethodGet, "/api/version", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var v VersionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	assert.Equal(t, Version, v.Version)
	assert.Equal(t, models.PlatformWeb, v.Platform)
	assert.NotEmpty(t, v.GoVersion)
}

func TestSyncHandler_SyncNow(t *testing.T) {
	s := setupTestServer(t)

	resp := s.do(t, http.MethodPost, "/api/sync/now", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var state models.SyncState
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	assert.Equal(t, models.StatusSuccess, state.Status)
	require.NotNil(t, state.LastSyncedAt)
	assert.Equal(t, "2024-01-01T00:00:00Z", *state.LastSyncedAt)
	assert.Equal(t, int32(1), s.pulls.Load())

	t.Run("reset returns to idle", func(t *testing.T) {
		resp := s.do(t, http.MethodPost, "/api/sync/reset", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var state models.SyncState
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
		assert.Equal(t, models.InitialSyncState(), state)
	})
}

func TestSyncHandler_Records(t *testing.T) {
	s := setupTestServer(t)
	now := time.Now().UTC().Truncate(time.Second)

	cat := models.Category{ID: "cat-1", Name: "Food", Kind: "expense", CreatedAt: now, UpdatedAt: now}
	resp := s.do(t, http.MethodPost, "/api/records/categories", cat)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	rec, err := s.records.GetByID(context.Background(), models.TableCategories, "cat-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.Meta().IsPending())

	t.Run("get", func(t *testing.T) {
		resp := s.do(t, http.MethodGet, "/api/records/categories/cat-1", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got models.Category
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, "Food", got.Name)
	})

	t.Run("money accepts a string", func(t *testing.T) {
		body := map[string]interface{}{
			"id": "tx-1", "amount": "12.30", "kind": "expense", "categoryId": "cat-1",
			"occurredAt": now, "createdAt": now, "updatedAt": now,
		}
		resp := s.do(t, http.MethodPost, "/api/records/transactions", body)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		rec, err := s.records.GetByID(context.Background(), models.TableTransactions, "tx-1")
		require.NoError(t, err)
		assert.Equal(t, models.Money(12.3), rec.(*models.Transaction).Amount)
	})

	t.Run("delete", func(t *testing.T) {
		resp := s.do(t, http.MethodDelete, "/api/records/categories/cat-1", nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp = s.do(t, http.MethodDelete, "/api/records/categories/cat-1", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("missing record", func(t *testing.T) {
		resp := s.do(t, http.MethodGet, "/api/records/stores/nope", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("unknown table", func(t *testing.T) {
		resp := s.do(t, http.MethodPost, "/api/records/users", map[string]string{"id": "u"})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("id required", func(t *testing.T) {
		resp := s.do(t, http.MethodPost, "/api/records/stores", map[string]string{"name": "x"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestSyncHandler_Claim(t *testing.T) {
	s := setupTestServer(t)
	now := time.Now().UTC()
	require.NoError(t, s.records.Save(context.Background(), &models.Store{ID: "s1", Name: "Shop", CreatedAt: now, UpdatedAt: now}))

	resp := s.do(t, http.MethodPost, "/api/sync/claim", models.ClaimRequest{UserID: "user-7"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out models.ClaimResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, int64(1), out.Claimed)

	resp = s.do(t, http.MethodPost, "/api/sync/claim", models.ClaimRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSyncHandler_Foreground(t *testing.T) {
	s := setupTestServer(t)

	resp := s.do(t, http.MethodPost, "/api/lifecycle/foreground", nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool { return s.pulls.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestSessionHandler(t *testing.T) {
	s := setupTestServer(t)

	resp := s.do(t, http.MethodPost, "/api/session", SignInRequest{UserID: "user-2", AccessToken: "token"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Eventually(t, func() bool { return s.pulls.Load() == 1 }, 5*time.Second, 10*time.Millisecond)

	resp = s.do(t, http.MethodPost, "/api/session", SignInRequest{UserID: "user-2"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodDelete, "/api/session", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, models.StatusIdle, s.sync.GetState().Status)
}

func TestWebSocketHandler_StreamsState(t *testing.T) {
	s := setupTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws/sync"
	header := http.Header{}
	header.Set("X-API-Key", testAPIKey)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	readState := func() models.SyncState {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var msg struct {
			Type    string           `json:"type"`
			Payload models.SyncState `json:"payload"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		require.Equal(t, services.WSTypeSyncState, msg.Type)
		return msg.Payload
	}

	assert.Equal(t, models.StatusIdle, readState().Status)

	resp := s.do(t, http.MethodPost, "/api/sync/now", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var seen []models.Status
	for len(seen) == 0 || seen[len(seen)-1] != models.StatusSuccess {
		seen = append(seen, readState().Status)
	}
	assert.Contains(t, seen, models.StatusPushing)
	assert.Contains(t, seen, models.StatusPulling)

	t.Run("without key", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}
