package catalog

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// runMigrations brings the schema up to date on every open. goose tracks
// the applied set in its own version table, so opening a fully migrated
// database applies nothing.
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	// goose expects migration files at the root of the fs.FS it is given.
	src, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("catalog: migration filesystem: %w", err)
	}

	p, err := goose.NewProvider(goose.DialectSQLite3, db, src)
	if err != nil {
		return fmt.Errorf("catalog: migration provider: %w", err)
	}

	applied, err := p.Up(ctx)
	if err != nil {
		return fmt.Errorf("catalog: apply migrations: %w", err)
	}

	if len(applied) > 0 {
		last := applied[len(applied)-1]
		logger.Info("schema migrated",
			slog.Int("applied", len(applied)),
			slog.Int64("version", last.Source.Version),
		)
	}

	return nil
}
