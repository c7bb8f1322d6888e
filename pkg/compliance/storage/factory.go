package storage

import (
	"context"
	"fmt"

	"mercator-hq/custodian/pkg/compliance"
	"mercator-hq/custodian/pkg/config"
)

// New opens the backend selected by cfg.Backend.
func New(ctx context.Context, cfg *config.StorageConfig) (compliance.Storage, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStorage(), nil
	case "", "sqlite":
		s, err := NewSQLiteStorage(ctx, &SQLiteConfig{
			Path:         cfg.SQLite.Path,
			Driver:       cfg.SQLite.Driver,
			MaxOpenConns: cfg.SQLite.MaxOpenConns,
			WALMode:      cfg.SQLite.WALMode,
			BusyTimeout:  cfg.SQLite.BusyTimeout,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := NewPostgresStorage(ctx, &PostgresConfig{
			DSN:             cfg.Postgres.DSN,
			Driver:          cfg.Postgres.Driver,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}
