package backend

import (
	"context"
	"fmt"
	"log/slog"

	"forecast/internal/store/memory"
	"forecast/internal/store/sqlite"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewDefaultFactory creates a new backend factory
func NewDefaultFactory(logger *slog.Logger) *DefaultFactory {
	return &DefaultFactory{logger: logger}
}

// CreateBackend creates a backend based on the provided configuration
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backend config: %w", err)
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	f.logger.Info("initializing sqlite backend", "db_path", config.SQLiteDBPath)

	repo, err := sqlite.NewRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite repository: %w", err)
	}

	return &BackendResult{
		Store:   repo,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context, config Config) (*BackendResult, error) {
	f.logger.Info("initializing memory backend", "seed_dir", config.SeedDir)

	st := memory.NewFromFiles(config.SeedDir)

	return &BackendResult{
		Store:   st,
		Cleanup: st.Close,
	}, nil
}
