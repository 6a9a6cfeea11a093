package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pocketledger/syncengine/internal/observability"
	"github.com/pocketledger/syncengine/internal/services"
)

// SignInRequest for POST /api/session
type SignInRequest struct {
	UserID      string `json:"userId" validate:"required"`
	AccessToken string `json:"accessToken" validate:"required"`
}

// SessionHandler lets the UI process hand over sign-in and sign-out
type SessionHandler struct {
	session  *services.StaticSession
	claims   *services.ClaimService
	sync     *services.SyncService
	validate *validator.Validate
}

// NewSessionHandler creates a new SessionHandler. session is nil when
// credentials come from OAuth and cannot be replaced.
func NewSessionHandler(session *services.StaticSession, claims *services.ClaimService, sync *services.SyncService) *SessionHandler {
	return &SessionHandler{
		session:  session,
		claims:   claims,
		sync:     sync,
		validate: validator.New(),
	}
}

// SignIn stores the session, claims anonymous rows for the user and starts a sync
func (h *SessionHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	if h.session == nil {
		writeError(w, http.StatusConflict, "Session is managed by OAuth")
		return
	}

	var req SignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.AccessToken = strings.TrimSpace(req.AccessToken)
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.session.SignIn(req.UserID, req.AccessToken)

	if _, err := h.claims.ClaimAnonymousData(r.Context(), req.UserID); err != nil {
		observability.WithContext(r.Context()).Errorf("Failed to claim anonymous data: %v", err)
	}

	h.sync.SyncInBackground()

	writeJSON(w, http.StatusOK, h.sync.GetState())
}

// SignOut clears the session and resets the engine
func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if h.session != nil {
		h.session.SignOut()
	}

	if err := h.sync.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
