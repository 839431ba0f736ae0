package cli

import (
	"context"
	"fmt"

	"github.com/asad/accountd/internal/config"
	"github.com/asad/accountd/internal/events"
	"github.com/asad/accountd/internal/logging"
	"github.com/asad/accountd/internal/recordstore"
	"github.com/asad/accountd/internal/services/accounts"
	"github.com/asad/accountd/internal/state"
)

// app bundles the collaborators every command needs.
type app struct {
	cfg     *config.Config
	logger  logging.Logger
	store   recordstore.Store
	bus     *events.Bus
	manager *accounts.Manager
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	store, err := state.OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize record store: %w", err)
	}

	bus := events.NewBus(logger)
	bus.Subscribe("", events.LogHandler(logger))

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		bus:     bus,
		manager: accounts.NewManager(store, bus, accounts.BuildDefaultRecord, logger),
	}, nil
}

// Close drains pending events before releasing the store.
func (a *app) Close() error {
	a.bus.Close()
	err := a.store.Close()
	_ = a.logger.Sync()
	return err
}
