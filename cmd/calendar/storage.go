package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/calendar-service/internal/config"
	"github.com/example/calendar-service/internal/persistence"
	"github.com/example/calendar-service/internal/persistence/memory"
	"github.com/example/calendar-service/internal/persistence/mongo"
	"github.com/example/calendar-service/internal/persistence/sqlite"
)

// openStorage connects the backend selected by cfg.Storage and prepares its
// schema. The caller owns the returned store.
func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (persistence.Store, error) {
	switch cfg.Storage {
	case config.StorageSQLite:
		store, err := sqlite.Open(ctx, sqlite.DefaultConfig(cfg.SQLitePath))
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		logger.Info("sqlite storage ready", "path", cfg.SQLitePath)
		return store, nil
	case config.StorageMongo:
		store, err := mongo.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		logger.Info("mongo storage ready", "database", cfg.MongoDatabase)
		return store, nil
	case config.StorageMemory:
		logger.Warn("using in-memory storage; data is lost on exit")
		return memory.Open(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}
