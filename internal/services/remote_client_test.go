package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/pocketledger/syncengine/internal/models"
)

func TestRemoteClient_Post(t *testing.T) {
	t.Run("sends bearer token and json body", func(t *testing.T) {
		var gotAuth, gotType string
		var gotBody map[string]string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotType = r.Header.Get("Content-Type")
			json.NewDecoder(r.Body).Decode(&gotBody)
			w.Write([]byte(`{"ok": "yes"}`))
		}))
		defer srv.Close()

		client := NewRemoteClient(srv.URL+"/", NewStaticSession("u1", "tok"), time.Second)
		var out map[string]string
		require.NoError(t, client.Post(context.Background(), "/api/echo", map[string]string{"a": "b"}, &out))

		assert.Equal(t, "Bearer tok", gotAuth)
		assert.Equal(t, "application/json", gotType)
		assert.Equal(t, "b", gotBody["a"])
		assert.Equal(t, "yes", out["ok"])
	})

	t.Run("no session fails without a request", func(t *testing.T) {
		called := false
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))
		defer srv.Close()

		client := NewRemoteClient(srv.URL, NewStaticSession("", ""), time.Second)
		err := client.Post(context.Background(), "/api/echo", nil, nil)

		assert.True(t, IsAuthenticationError(err))
		assert.False(t, called)
	})

	t.Run("non-2xx uses the server message", func(t *testing.T) {
		cases := map[string]struct {
			body string
			want string
		}{
			"error field":   {`{"error": "quota exceeded"}`, "quota exceeded"},
			"message field": {`{"message": "try later"}`, "try later"},
			"plain body":    {`gateway down`, "Bad Gateway"},
		}
		for name, tc := range cases {
			t.Run(name, func(t *testing.T) {
				srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusBadGateway)
					w.Write([]byte(tc.body))
				}))
				defer srv.Close()

				client := NewRemoteClient(srv.URL, NewStaticSession("u1", "tok"), time.Second)
				err := client.Post(context.Background(), "/x", struct{}{}, nil)

				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
				assert.Equal(t, tc.want, apiErr.Message)
			})
		}
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
		defer srv.Close()
		defer close(release)

		client := NewRemoteClient(srv.URL, NewStaticSession("u1", "tok"), 50*time.Millisecond)
		err := client.Post(context.Background(), "/slow", struct{}{}, nil)
		assert.Error(t, err)
	})
}

func TestRemoteClient_Envelopes(t *testing.T) {
	serve := func(t *testing.T, body string) *RemoteClient {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}))
		t.Cleanup(srv.Close)
		return NewRemoteClient(srv.URL, NewStaticSession("u1", "tok"), time.Second)
	}
	ctx := context.Background()

	t.Run("push without data", func(t *testing.T) {
		_, err := serve(t, `{}`).Push(ctx, models.PushRequest{Changes: models.NewSyncChanges()})
		var pushErr *SyncPushError
		assert.ErrorAs(t, err, &pushErr)
	})

	t.Run("pull without syncedAt", func(t *testing.T) {
		_, err := serve(t, `{"data": {"changes": {}}}`).Pull(ctx, models.PullRequest{DeviceID: "d"})
		var pullErr *SyncPullError
		assert.ErrorAs(t, err, &pullErr)
	})

	t.Run("pull decodes changes", func(t *testing.T) {
		result, err := serve(t, `{"data": {"syncedAt": "2024-01-01T00:00:00Z", "changes": {"stores": {"upserted": [], "deleted": ["s1"]}}}}`).
			Pull(ctx, models.PullRequest{DeviceID: "d"})
		require.NoError(t, err)
		assert.Equal(t, "2024-01-01T00:00:00Z", result.SyncedAt)
		assert.Equal(t, []string{"s1"}, result.Changes.Stores.Deleted)
	})

	t.Run("pull rejects malformed rows", func(t *testing.T) {
		for name, changes := range map[string]string{
			"null row":       `{"categories": {"upserted": [null], "deleted": []}}`,
			"row without id": `{"transactions": {"upserted": [{}], "deleted": []}}`,
			"empty delete":   `{"stores": {"upserted": [], "deleted": [""]}}`,
		} {
			t.Run(name, func(t *testing.T) {
				_, err := serve(t, `{"data": {"syncedAt": "2024-01-01T00:00:00Z", "changes": `+changes+`}}`).
					Pull(ctx, models.PullRequest{DeviceID: "d"})
				var pullErr *SyncPullError
				assert.ErrorAs(t, err, &pullErr)
			})
		}
	})

	t.Run("register without id", func(t *testing.T) {
		_, err := serve(t, `{"data": {"id": ""}}`).RegisterDevice(ctx, models.RegisterDeviceRequest{Platform: models.PlatformIOS, DeviceName: "p"})
		var regErr *DeviceRegistrationError
		assert.ErrorAs(t, err, &regErr)
	})

	t.Run("register returns id", func(t *testing.T) {
		id, err := serve(t, `{"data": {"id": "dev-1"}}`).RegisterDevice(ctx, models.RegisterDeviceRequest{Platform: models.PlatformIOS, DeviceName: "p"})
		require.NoError(t, err)
		assert.Equal(t, "dev-1", id)
	})
}

func TestPullRequest_NullWatermark(t *testing.T) {
	data, err := json.Marshal(models.PullRequest{DeviceID: "d"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"deviceId": "d", "lastSyncedAt": null}`, string(data))
}

func TestTokenSourceSession(t *testing.T) {
	ctx := context.Background()

	t.Run("valid token", func(t *testing.T) {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "abc", Expiry: time.Now().Add(time.Hour)})
		session := NewTokenSourceSession("u1", src).CurrentSession(ctx)
		require.NotNil(t, session)
		assert.Equal(t, "abc", session.AccessToken)
		assert.Equal(t, "u1", session.UserID)
	})

	t.Run("expired token means signed out", func(t *testing.T) {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "abc", Expiry: time.Now().Add(-time.Hour)})
		assert.Nil(t, NewTokenSourceSession("u1", src).CurrentSession(ctx))
	})
}

func TestStaticSession(t *testing.T) {
	ctx := context.Background()
	s := NewStaticSession("", "")
	assert.Nil(t, s.CurrentSession(ctx))

	s.SignIn("u1", "tok")
	require.NotNil(t, s.CurrentSession(ctx))
	assert.Equal(t, "tok", s.CurrentSession(ctx).AccessToken)

	s.SignOut()
	assert.Nil(t, s.CurrentSession(ctx))
}
