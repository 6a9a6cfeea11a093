package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pocketledger/syncengine/internal/models"
	"github.com/pocketledger/syncengine/internal/observability"
	"github.com/pocketledger/syncengine/internal/repository"
	"github.com/pocketledger/syncengine/internal/services"
)

// SyncHandler exposes the sync engine to the UI process
type SyncHandler struct {
	sync      *services.SyncService
	claims    *services.ClaimService
	records   repository.RecordRepo
	lifecycle *services.LifecycleEvents
	validate  *validator.Validate
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(
	sync *services.SyncService,
	claims *services.ClaimService,
	records repository.RecordRepo,
	lifecycle *services.LifecycleEvents,
) *SyncHandler {
	return &SyncHandler{
		sync:      sync,
		claims:    claims,
		records:   records,
		lifecycle: lifecycle,
		validate:  validator.New(),
	}
}

// GetState returns the current sync state
func (h *SyncHandler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sync.GetState())
}

// SyncNow runs a cycle and returns the resulting state. A failed cycle is
// reported in the state, not as an HTTP error.
func (h *SyncHandler) SyncNow(w http.ResponseWriter, r *http.Request) {
	if err := h.sync.SyncNow(r.Context()); err != nil {
		observability.WithContext(r.Context()).Warnf("Manual sync failed: %v", err)
	}
	writeJSON(w, http.StatusOK, h.sync.GetState())
}

// Changed tells the engine a local write happened
func (h *SyncHandler) Changed(w http.ResponseWriter, r *http.Request) {
	h.sync.ScheduleSyncAfterChange()
	w.WriteHeader(http.StatusAccepted)
}

// Reset cancels in-flight work and clears sync identifiers
func (h *SyncHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.sync.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.sync.GetState())
}

// Claim assigns anonymous rows to a user and schedules a sync
func (h *SyncHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req models.ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	claimed, err := h.claims.ClaimAnonymousData(r.Context(), req.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if claimed > 0 {
		h.sync.ScheduleSyncAfterChange()
	}

	writeJSON(w, http.StatusOK, models.ClaimResponse{Claimed: claimed})
}

// Foreground signals that the app returned to the foreground
func (h *SyncHandler) Foreground(w http.ResponseWriter, r *http.Request) {
	h.lifecycle.Foreground()
	w.WriteHeader(http.StatusAccepted)
}

// GetRecord returns one local row
func (h *SyncHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	table, ok := tableParam(w, r)
	if !ok {
		return
	}

	rec, err := h.records.GetByID(r.Context(), table, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "Record not found")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// SaveRecord writes a row locally as pending and schedules a sync
func (h *SyncHandler) SaveRecord(w http.ResponseWriter, r *http.Request) {
	table, ok := tableParam(w, r)
	if !ok {
		return
	}

	rec, _ := models.NewRecord(table)
	if err := json.NewDecoder(r.Body).Decode(rec); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if rec.RecordID() == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.records.Save(r.Context(), rec); err != nil {
		observability.WithContext(r.Context()).Errorf("Failed to save %s %s: %v", table, rec.RecordID(), err)
		writeError(w, http.StatusInternalServerError, "Failed to save record")
		return
	}
	h.sync.ScheduleSyncAfterChange()

	writeJSON(w, http.StatusOK, models.SaveRecordResponse{Table: table, ID: rec.RecordID()})
}

// DeleteRecord soft-deletes a row locally and schedules a sync
func (h *SyncHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	table, ok := tableParam(w, r)
	if !ok {
		return
	}

	deleted, err := h.records.SoftDelete(r.Context(), table, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete record")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Record not found")
		return
	}
	h.sync.ScheduleSyncAfterChange()

	w.WriteHeader(http.StatusNoContent)
}

func tableParam(w http.ResponseWriter, r *http.Request) (models.Table, bool) {
	table, err := models.ParseTable(chi.URLParam(r, "table"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Unknown table")
		return "", false
	}
	return table, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.ErrorResponse{Error: msg})
}
