package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pocketledger/syncengine/internal/config"
	"github.com/pocketledger/syncengine/internal/handlers"
	"github.com/pocketledger/syncengine/internal/observability"
	"github.com/pocketledger/syncengine/internal/services"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the control API and sync in the background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// Telemetry
	telemetry, err := observability.Initialize(ctx,
		observability.NewConfig("pocketledger-sync", handlers.Version, cfg.Device.Platform))
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	metrics, err := observability.NewSyncMetrics()
	if err != nil {
		observability.Warnf("Sync metrics unavailable: %v", err)
	}

	e, err := newEngine(ctx, cfg, metrics)
	if err != nil {
		return err
	}
	defer e.db.Close()

	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := services.NewStateHub()
	go hub.Run(hubCtx)
	detachHub := hub.Attach(e.sync)

	scheduler := services.NewSyncScheduler(e.cfg.Sync.Schedule, e.sync)
	if err := scheduler.Start(); err != nil {
		stopHub()
		e.sync.Close()
		return fmt.Errorf("start sync scheduler: %w", err)
	}

	// Initialize handlers
	router := handlers.NewRouter(handlers.RouterConfig{
		Sync:         handlers.NewSyncHandler(e.sync, e.claims, e.records, e.lifecycle),
		Session:      handlers.NewSessionHandler(e.static, e.claims, e.sync),
		WebSocket:    handlers.NewWebSocketHandler(hub, e.sync),
		Health:       handlers.NewHealthHandler(e.sync, hub),
		Version:      handlers.NewVersionHandler(e.platform),
		APIKey:       e.cfg.Security.APIKey,
		APIKeyHeader: e.cfg.Security.APIKeyHeader,
	})

	// Create server
	srv := &http.Server{
		Addr:         e.cfg.Control.Address,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // websocket streams and manual syncs are long-lived
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		observability.Infof("Sync engine control API starting on %s", e.cfg.Control.Address)
		observability.Infof("Backend: %s, database: %s, platform: %s", e.cfg.APIBaseURL, e.cfg.DatabasePath, e.platform)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	// First sync on startup counts as coming to the foreground
	e.lifecycle.Foreground()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-quit:
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("control API: %w", err)
		}
	}

	observability.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		observability.Errorf("Server forced to shutdown: %v", err)
	}

	scheduler.Stop()
	detachHub()
	e.sync.Close()
	stopHub()

	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		observability.Warnf("Telemetry shutdown: %v", err)
	}

	observability.Info("Sync engine stopped")
	return runErr
}
