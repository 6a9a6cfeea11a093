package models

import "time"

// HealthResponse is returned by health check
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Sync      Status    `json:"sync"`
	Clients   int       `json:"clients"`
}

// ClaimRequest for POST /api/sync/claim
type ClaimRequest struct {
	UserID string `json:"userId" validate:"required"`
}

// ClaimResponse reports how many rows were claimed
type ClaimResponse struct {
	Claimed int64 `json:"claimed"`
}

// SaveRecordResponse is returned after a local write
type SaveRecordResponse struct {
	Table Table  `json:"table"`
	ID    string `json:"id"`
}
