package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	custommw "github.com/pocketledger/syncengine/internal/middleware"
	"github.com/pocketledger/syncengine/internal/observability"
)

// RouterConfig holds everything the control API routes need
type RouterConfig struct {
	Sync         *SyncHandler
	Session      *SessionHandler
	WebSocket    *WebSocketHandler
	Health       *HealthHandler
	Version      http.HandlerFunc
	APIKey       string
	APIKeyHeader string
}

// NewRouter builds the control API
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestID)
	r.Use(observability.TracingMiddleware())
	r.Use(custommw.APIKeyAuth(cfg.APIKey, cfg.APIKeyHeader))

	// Routes
	r.Get("/health", cfg.Health.HealthCheck)
	r.Get("/api/health", cfg.Health.HealthCheck)
	if cfg.Version != nil {
		r.Get("/api/version", cfg.Version)
	}

	r.Route("/api/sync", func(r chi.Router) {
		r.Get("/state", cfg.Sync.GetState)
		r.Post("/now", cfg.Sync.SyncNow)
		r.Post("/changed", cfg.Sync.Changed)
		r.Post("/reset", cfg.Sync.Reset)
		r.Post("/claim", cfg.Sync.Claim)
	})

	r.Post("/api/lifecycle/foreground", cfg.Sync.Foreground)

	if cfg.Session != nil {
		r.Post("/api/session", cfg.Session.SignIn)
		r.Delete("/api/session", cfg.Session.SignOut)
	}

	r.Route("/api/records/{table}", func(r chi.Router) {
		r.Post("/", cfg.Sync.SaveRecord)
		r.Get("/{id}", cfg.Sync.GetRecord)
		r.Delete("/{id}", cfg.Sync.DeleteRecord)
	})

	if cfg.WebSocket != nil {
		r.Get("/ws/sync", cfg.WebSocket.HandleConnection)
	}

	return r
}
