package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pocketledger/syncengine/internal/models"
	"github.com/pocketledger/syncengine/internal/observability"
)

const (
	PathPush           = "/api/sync/push"
	PathPull           = "/api/sync/pull"
	PathRegisterDevice = "/api/auth/device"

	// maxErrorBody bounds how much of a failed response is read for its message
	maxErrorBody = 64 * 1024
)

// RemoteClient is the authenticated JSON transport to the sync backend
type RemoteClient struct {
	baseURL    string
	sessions   SessionProvider
	httpClient *http.Client
}

// NewRemoteClient creates a client; timeout bounds every request so a hung
// call cannot hold the sync gate forever.
func NewRemoteClient(baseURL string, sessions SessionProvider, timeout time.Duration) *RemoteClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RemoteClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		sessions:   sessions,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Post sends body as JSON to path with the session's bearer token and decodes
// a 2xx response into out.
func (c *RemoteClient) Post(ctx context.Context, path string, body, out interface{}) (err error) {
	ctx, span := observability.StartHTTPClientSpan(ctx, http.MethodPost, path)
	defer span.End()
	defer func() { observability.RecordError(span, err) }()

	session := c.sessions.CurrentSession(ctx)
	if session == nil || session.AccessToken == "" {
		return &AuthenticationError{Reason: "no active session"}
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", path, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiErrorFromResponse(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

// apiErrorFromResponse prefers the server's message and falls back to the status text
func apiErrorFromResponse(resp *http.Response) *APIError {
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	message := http.StatusText(resp.StatusCode)
	var errBody models.ErrorResponse
	if json.Unmarshal(respBody, &errBody) == nil {
		switch {
		case errBody.Error != "":
			message = errBody.Error
		case errBody.Message != "":
			message = errBody.Message
		}
	}
	if message == "" {
		message = resp.Status
	}

	return &APIError{StatusCode: resp.StatusCode, Message: message}
}

// Push sends local changes
func (c *RemoteClient) Push(ctx context.Context, req models.PushRequest) (*models.PushResult, error) {
	var resp models.PushResponse
	if err := c.Post(ctx, PathPush, req, &resp); err != nil {
		if IsAuthenticationError(err) {
			return nil, err
		}
		return nil, &SyncPushError{Err: err}
	}
	if resp.Data == nil {
		return nil, &SyncPushError{Err: errors.New("response has no data")}
	}
	return resp.Data, nil
}

// Pull fetches remote changes since req.LastSyncedAt
func (c *RemoteClient) Pull(ctx context.Context, req models.PullRequest) (*models.PullResult, error) {
	var resp models.PullResponse
	if err := c.Post(ctx, PathPull, req, &resp); err != nil {
		if IsAuthenticationError(err) {
			return nil, err
		}
		return nil, &SyncPullError{Err: err}
	}
	if resp.Data == nil {
		return nil, &SyncPullError{Err: errors.New("response has no data")}
	}
	if resp.Data.SyncedAt == "" {
		return nil, &SyncPullError{Err: errors.New("response has no syncedAt")}
	}
	if err := resp.Data.Changes.Validate(); err != nil {
		return nil, &SyncPullError{Err: err}
	}
	return resp.Data, nil
}

// RegisterDevice asks the backend for a device id
func (c *RemoteClient) RegisterDevice(ctx context.Context, req models.RegisterDeviceRequest) (string, error) {
	var resp models.RegisterDeviceResponse
	if err := c.Post(ctx, PathRegisterDevice, req, &resp); err != nil {
		if IsAuthenticationError(err) {
			return "", err
		}
		return "", &DeviceRegistrationError{Err: err}
	}
	if resp.Data == nil || resp.Data.ID == "" {
		return "", &DeviceRegistrationError{Err: errors.New("response has no device id")}
	}
	return resp.Data.ID, nil
}
