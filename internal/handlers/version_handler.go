package handlers

import (
	"net/http"
	"runtime"

	"github.com/pocketledger/syncengine/internal/models"
)

// Build information, set with -ldflags "-X github.com/pocketledger/syncengine/internal/handlers.Version=..."
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// VersionResponse for GET /api/version
type VersionResponse struct {
	Version   string          `json:"version"`
	GitCommit string          `json:"gitCommit"`
	BuildTime string          `json:"buildTime"`
	GoVersion string          `json:"goVersion"`
	Platform  models.Platform `json:"platform"`
}

// NewVersionHandler describes this build and the platform it syncs as
func NewVersionHandler(platform models.Platform) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, VersionResponse{
			Version:   Version,
			GitCommit: GitCommit,
			BuildTime: BuildTime,
			GoVersion: runtime.Version(),
			Platform:  platform,
		})
	}
}
