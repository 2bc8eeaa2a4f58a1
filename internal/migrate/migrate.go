// Package migrate applies the postgres schema migrations backing the
// Standard profile's domain store and telemetry sink (§3 "Persisted
// state layout"). The Lite profile's embedded sqlite databases create
// their tables inline at open time instead, since goose's postgres
// dialect does not apply there.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

// Run opens dsn through database/sql (goose requires a *sql.DB, not a
// pgxpool.Pool) and applies every pending migration.
func Run(ctx context.Context, dsn string, logger *slog.Logger) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("migrate: open: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("migrate: ping: %w", err)
	}

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("migrate: set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "sql"); err != nil {
		return fmt.Errorf("migrate: up: %w", err)
	}

	logger.Info("schema migrations applied")
	return nil
}
