package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/tartil/internal/config"
	"github.com/MrWong99/tartil/internal/history"
	"github.com/MrWong99/tartil/internal/history/postgres"
)

// openHistory opens the configured history backend. It returns a nil store
// when none is configured. closeFn must be called once the store is no
// longer used.
func openHistory(ctx context.Context, cfg config.HistoryConfig) (store history.Store, closeFn func(), err error) {
	switch cfg.Backend {
	case config.HistoryNone:
		return nil, func() {}, nil
	case config.HistoryMemory:
		return history.NewMemoryStore(cfg.MaxRecords), func() {}, nil
	case config.HistoryPostgres:
		pg, err := postgres.NewStore(ctx, cfg.PostgresDSN, cfg.CentroidDimensions())
		if err != nil {
			return nil, nil, fmt.Errorf("open history: %w", err)
		}
		slog.Info("history store connected", "backend", cfg.Backend, "dimensions", cfg.CentroidDimensions())
		return pg, pg.Close, nil
	default:
		return nil, nil, fmt.Errorf("open history: unknown backend %q", cfg.Backend)
	}
}
