package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rongwang/groupbets-server/internal/repository"
)

// SetupRepository opens the storage backend selected by cfg.Store.Driver.
// The returned repository owns the connection; Close releases it.
func SetupRepository(ctx context.Context, cfg *Config) (repository.Repository, error) {
	switch cfg.Store.Driver {
	case DriverPostgres:
		db, err := SetupDatabase(cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", repository.ErrStorageUnavailable, err)
		}
		slog.Info("Storage initialized", "driver", DriverPostgres, "database", cfg.Database.DBName)
		return repository.NewPostgresRepository(db), nil

	case DriverMongo:
		client, err := SetupMongo(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", repository.ErrStorageUnavailable, err)
		}
		slog.Info("Storage initialized", "driver", DriverMongo, "database", cfg.Mongo.Database)
		return repository.NewMongoRepository(client, cfg.Mongo.Database), nil

	case DriverMemory:
		slog.Warn("Storage initialized in memory; data is lost on exit", "driver", DriverMemory)
		return repository.NewMemoryRepository(), nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
