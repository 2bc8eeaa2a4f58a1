package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/netraven/engine/internal/config"
)

// NewSink selects and constructs the Telemetry Sink backend for cfg's
// deployment profile: sqlite for Lite, postgres for Standard. pgPool may
// be nil for the Lite profile.
func NewSink(ctx context.Context, cfg *config.Config, pgPool *pgxpool.Pool, logger *slog.Logger) (Sink, error) {
	switch {
	case cfg.IsLiteProfile():
		logger.Info("initializing telemetry sink", "profile", cfg.Profile, "backend", "sqlite", "path", cfg.Database.SQLite.Path)
		sink, err := NewSQLiteSink(ctx, cfg.Database.SQLite.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("telemetry: init sqlite sink: %w", err)
		}
		return sink, nil

	case cfg.IsStandardProfile():
		logger.Info("initializing telemetry sink", "profile", cfg.Profile, "backend", "postgres")
		if pgPool == nil {
			return nil, fmt.Errorf("telemetry: postgres pool is required for standard profile")
		}
		if err := pgPool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("telemetry: postgres connection failed: %w", err)
		}
		return NewPostgresSink(pgPool), nil

	default:
		return nil, fmt.Errorf("telemetry: unknown deployment profile %q", cfg.Profile)
	}
}

// NewFallbackSink returns a non-durable in-memory sink. The worker uses
// it when the configured backend fails to initialize, so startup
// degrades instead of failing.
func NewFallbackSink(logger *slog.Logger) Sink {
	logger.Warn("falling back to in-memory telemetry sink; data will not persist across restarts")
	return NewMemorySink()
}
