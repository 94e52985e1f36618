package postgres

import (
	"context"
	"fmt"

	"github.com/pressly/goose/v3"

	"moneta/internal/infrastructure/postgres/migrations"
)

// RunMigrations applies the embedded goose migrations to the database.
// Called once at startup before any repository is used.
func (db *DB) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db.DB, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
