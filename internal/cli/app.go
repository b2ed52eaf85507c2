// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/desktollama/internal/config"
	"github.com/jeranaias/desktollama/internal/model"
	"github.com/jeranaias/desktollama/internal/ollama"
	"github.com/jeranaias/desktollama/internal/session"
	"github.com/jeranaias/desktollama/internal/storage"
)

// App wires configuration, persistence, the model catalog and the session
// controller together. Every command builds one and closes it on exit.
type App struct {
	Config     *config.Config
	Logger     *log.Logger
	Backend    storage.Backend
	Store      *storage.SessionStore
	Client     *ollama.Client
	Registry   *model.Registry
	Controller *session.Controller
}

// NewApp opens the configured backend and builds the collaborators on top
// of it. The controller is not initialized yet.
func NewApp(cfg *config.Config, logger *log.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if logger == nil {
		logger = log.Default()
	}

	backend, err := storage.Open(storage.Options{
		Kind: cfg.Storage.Backend,
		Path: cfg.Storage.Path,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Backend, err)
	}

	store := storage.NewSessionStore(backend,
		storage.WithNamespace(cfg.Storage.Namespace),
		storage.WithStoreLogger(logger),
	)

	client := ollama.NewClientWithConfig(&ollama.ClientConfig{
		BaseURL: cfg.Ollama.URL,
		Timeout: cfg.OllamaTimeout(),
	})

	registry := model.NewRegistry(client,
		model.WithRegistryLogger(logger),
		model.WithRefreshInterval(cfg.RefreshInterval()),
	)

	controller := session.NewController(store, registry,
		session.WithLogger(logger),
	)

	logger.Debug("storage opened", "backend", cfg.Storage.Backend, "path", cfg.Storage.Path)

	return &App{
		Config:     cfg,
		Logger:     logger,
		Backend:    backend,
		Store:      store,
		Client:     client,
		Registry:   registry,
		Controller: controller,
	}, nil
}

// Start restores persisted sessions into the controller.
func (a *App) Start(ctx context.Context) (dropped int, err error) {
	dropped, err = a.Controller.Initialize(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to restore sessions: %w", err)
	}
	if dropped > 0 {
		a.Logger.Warn("skipped unreadable sessions", "count", dropped)
	}
	return dropped, nil
}

// Close releases the storage backend.
func (a *App) Close() error {
	if a.Backend == nil {
		return nil
	}
	return a.Backend.Close()
}
