// Package state opens the record store selected by configuration.
package state

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/asad/accountd/internal/config"
	"github.com/asad/accountd/internal/recordstore"
)

// OpenStore returns the record store named by cfg.StoreBackend.
func OpenStore(ctx context.Context, cfg *config.Config) (recordstore.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return recordstore.NewMemoryStore(), nil
	case config.BackendFile:
		store, err := recordstore.NewFileStore(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open file store: %w", err)
		}
		return store, nil
	case config.BackendSQLite:
		store, err := recordstore.OpenSQLite(ctx, filepath.Join(cfg.DataDir, "accounts.db"), cfg.StoreRetries)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	case config.BackendPostgres:
		store, err := recordstore.OpenPostgres(ctx, cfg.DatabaseDSN, cfg.StoreRetries)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	case config.BackendBolt:
		store, err := recordstore.OpenBolt(filepath.Join(cfg.DataDir, "accounts.bolt"))
		if err != nil {
			return nil, fmt.Errorf("open bolt store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
