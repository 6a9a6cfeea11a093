package main

import (
	"context"
	"database/sql"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/pocketledger/syncengine/internal/config"
	"github.com/pocketledger/syncengine/internal/models"
	"github.com/pocketledger/syncengine/internal/observability"
	"github.com/pocketledger/syncengine/internal/repository"
	"github.com/pocketledger/syncengine/internal/services"
)

// engine is the wired sync engine shared by every command
type engine struct {
	cfg       *config.Config
	platform  models.Platform
	db        *sql.DB
	records   *repository.RecordRepository
	store     *services.SyncStore
	sessions  services.SessionProvider
	static    *services.StaticSession // nil when OAuth supplies credentials
	lifecycle *services.LifecycleEvents
	sync      *services.SyncService
	claims    *services.ClaimService
}

// loadEngine wires an engine from configuration without telemetry
func loadEngine(ctx context.Context) (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return newEngine(ctx, cfg, nil)
}

func newEngine(ctx context.Context, cfg *config.Config, metrics *observability.SyncMetrics) (*engine, error) {
	platform, _ := cfg.Platform()

	db, err := repository.NewSQLiteDB(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	e := &engine{
		cfg:       cfg,
		platform:  platform,
		db:        db,
		records:   repository.NewRecordRepository(db),
		store:     services.NewSyncStore(repository.NewKeyValueRepository(db)),
		lifecycle: services.NewLifecycleEvents(),
	}

	if cfg.UseOAuth() {
		oauthCfg := &oauth2.Config{
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.OAuth.TokenURL},
		}
		src := oauthCfg.TokenSource(context.Background(), &oauth2.Token{RefreshToken: cfg.OAuth.RefreshToken})
		e.sessions = services.NewTokenSourceSession(cfg.UserID, src)
		observability.Info("Using OAuth refresh credentials")
	} else {
		e.static = services.NewStaticSession(cfg.UserID, cfg.AccessToken)
		e.sessions = e.static
	}

	remote := services.NewRemoteClient(cfg.APIBaseURL, e.sessions, cfg.Sync.RequestTimeout())
	e.sync = services.NewSyncService(e.sessions, remote, e.records, e.store, services.SyncOptions{
		Platform:   platform,
		DeviceName: cfg.Device.Name,
		Debounce:   cfg.Sync.Debounce(),
		ResetWait:  cfg.Sync.ResetWait(),
		Lifecycle:  e.lifecycle,
		Metrics:    metrics,
	})
	if err := e.sync.Initialize(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize sync: %w", err)
	}
	e.claims = services.NewClaimService(e.records)

	return e, nil
}

// Close stops background work and closes the database
func (e *engine) Close() {
	e.sync.Close()
	if err := e.db.Close(); err != nil {
		observability.Warnf("Closing database: %v", err)
	}
}
