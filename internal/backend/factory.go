package backend

import (
	"context"
	"fmt"

	"konto/internal/log"
	"konto/internal/storage"
)

// Result contains the store and the function releasing its resources.
type Result struct {
	Store   storage.Store
	Ping    func(ctx context.Context) error
	Cleanup func() error
}

// Factory creates stores based on configuration
type Factory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) *Factory {
	return &Factory{logger: log.OrDefault(logger, log.ComponentBackend)}
}

// Create opens the store selected by config.
func (f *Factory) Create(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		s, err := storage.NewSQLiteStore(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return &Result{Store: s, Ping: s.Ping, Cleanup: s.Close}, nil

	case PostgresBackend:
		s, err := storage.NewPostgresStore(ctx, config.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres store: %w", err)
		}
		f.logger.Info("Initialized Postgres backend")
		return &Result{Store: s, Ping: s.Ping, Cleanup: s.Close}, nil

	case MemoryBackend:
		f.logger.Warn("Using in-memory backend, data is lost on restart")
		return &Result{
			Store:   storage.NewMemoryStore(nil),
			Ping:    func(context.Context) error { return nil },
			Cleanup: func() error { return nil },
		}, nil

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}
