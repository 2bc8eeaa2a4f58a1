package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/netraven/engine/internal/config"
)

// NewStore selects and constructs the domain Store backend for cfg's
// deployment profile: sqlite for Lite, postgres for Standard. pgPool may
// be nil for the Lite profile; when non-nil it is the same pool used by
// the Telemetry Sink, since both live in one postgres database.
func NewStore(ctx context.Context, cfg *config.Config, pgPool *pgxpool.Pool, logger *slog.Logger) (Store, error) {
	switch {
	case cfg.IsLiteProfile():
		path := domainStorePath(cfg.Database.SQLite.Path)
		logger.Info("initializing domain store", "profile", cfg.Profile, "backend", "sqlite", "path", path)
		st, err := NewSQLiteStore(ctx, path, logger)
		if err != nil {
			return nil, fmt.Errorf("store: init sqlite store: %w", err)
		}
		return st, nil

	case cfg.IsStandardProfile():
		logger.Info("initializing domain store", "profile", cfg.Profile, "backend", "postgres")
		if pgPool == nil {
			return nil, fmt.Errorf("store: postgres pool is required for standard profile")
		}
		if err := pgPool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("store: postgres connection failed: %w", err)
		}
		return NewPostgresStore(pgPool), nil

	default:
		return nil, fmt.Errorf("store: unknown deployment profile %q", cfg.Profile)
	}
}

// domainStorePath derives the domain-table sqlite file from the
// configured telemetry path so the two embedded databases sit side by
// side without a second config key (e.g. "netraven.db" -> "netraven-store.db").
func domainStorePath(telemetryPath string) string {
	if idx := strings.LastIndex(telemetryPath, "."); idx > 0 {
		return telemetryPath[:idx] + "-store" + telemetryPath[idx:]
	}
	return telemetryPath + "-store"
}
