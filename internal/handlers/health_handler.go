package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/pocketledger/syncengine/internal/models"
	"github.com/pocketledger/syncengine/internal/services"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	sync *services.SyncService
	hub  *services.StateHub
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(sync *services.SyncService, hub *services.StateHub) *HealthHandler {
	return &HealthHandler{sync: sync, hub: hub}
}

// HealthCheck returns the engine health status
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Sync:      h.sync.GetState().Status,
	}
	if h.hub != nil {
		response.Clients = h.hub.GetClientCount()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
