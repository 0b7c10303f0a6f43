package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kalambet/primer/internal/assistant"
	"github.com/kalambet/primer/internal/auth"
	"github.com/kalambet/primer/internal/config"
	"github.com/kalambet/primer/internal/metrics"
	"github.com/kalambet/primer/internal/profile"
	"github.com/kalambet/primer/internal/storage"
)

// app is the wired set of components a command works with.
type app struct {
	cfg       config.Config
	store     *storage.Store
	profile   *profile.Manager
	assistant *assistant.Client
	metrics   *metrics.Metrics
}

// newApp loads configuration and wires the components. Tests replace it.
var newApp = func(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Log.Level)
	return buildApp(cfg, config.NewKeychain(), auth.NewHTTPClient())
}

// buildApp opens storage and connects the preference manager, the auth
// gateway and the assistant. They share httpClient so the gateway's session
// cookie reaches every backend call.
func buildApp(cfg config.Config, creds profile.Credentials, httpClient *http.Client) (*app, error) {
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	m := metrics.New()
	gateway := auth.New(cfg.Backend.APIURL, httpClient, auth.WithTokenSource(creds), auth.WithMetrics(m))
	remote := profile.NewRemote(cfg.ProfileBaseURL(), httpClient, m)

	mgr := profile.NewManager(profile.Deps{
		Store:       store,
		Credentials: creds,
		Gateway:     gateway,
		Remote:      remote,
	})
	if err := mgr.Load(); err != nil {
		store.Close()
		return nil, err
	}

	asst := assistant.New(cfg.Backend.APIURL, assistant.Options{
		MaxSources:  cfg.Chat.MaxSources,
		Temperature: cfg.Chat.Temperature,
		HTTPClient:  httpClient,
		Recorder:    store,
		Metrics:     m,
	})

	return &app{cfg: cfg, store: store, profile: mgr, assistant: asst, metrics: m}, nil
}

// restoreSession refreshes the authenticated flag from the gateway. An
// unreachable gateway leaves the learner signed out.
func (a *app) restoreSession(ctx context.Context) {
	if err := a.profile.Restore(ctx); err != nil {
		slog.Debug("session not restored", "error", err)
	}
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Warn("closing storage", "error", err)
	}
}
