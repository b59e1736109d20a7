package history

import (
	"context"
	"fmt"

	"tryon/internal/adapter/repo"
	"tryon/internal/domain"
	"tryon/internal/history/sqlite"
	"tryon/internal/infra"
	"tryon/internal/infra/credentials"
)

// Store is what every backend provides.
type Store interface {
	domain.HistoryRepository
	domain.HistoryPurger
}

// Backend is an opened history store plus the resources behind it.
type Backend struct {
	Name  string
	Store Store
	// Credentials is only set for the postgres backend.
	Credentials *credentials.Store
	closeFn     func()
}

func (b *Backend) Close() {
	if b != nil && b.closeFn != nil {
		b.closeFn()
	}
}

// Open selects the backend named by cfg.HistoryBackend and prepares its
// schema.
func Open(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*Backend, error) {
	switch cfg.HistoryBackend {
	case infra.HistoryBackendPostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		runner := infra.NewSQLRunner(pool, logger)
		hist := repo.NewHistoryRepository(runner)
		if err := hist.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		creds := credentials.NewStore(runner)
		if err := creds.EnsureSchema(ctx); err != nil {
			logger.Warn().Err(err).Msg("history: integration_tokens schema check failed")
		}
		return &Backend{Name: cfg.HistoryBackend, Store: hist, Credentials: creds, closeFn: pool.Close}, nil
	case infra.HistoryBackendSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &Backend{Name: cfg.HistoryBackend, Store: store, closeFn: func() { _ = store.Close() }}, nil
	case infra.HistoryBackendFile, "":
		store, err := NewFileStore(cfg.HistoryDir)
		if err != nil {
			return nil, err
		}
		return &Backend{Name: infra.HistoryBackendFile, Store: store}, nil
	default:
		return nil, fmt.Errorf("unsupported history backend %q", cfg.HistoryBackend)
	}
}
