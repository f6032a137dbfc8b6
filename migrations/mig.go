package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed files/*.sql
var migrationFS embed.FS

// Up runs all pending migrations against a sqlite database.
func Up(ctx context.Context, db *sql.DB) error {
	return UpWithDialect(ctx, db, "sqlite3")
}

// UpWithDialect runs the embedded migrations with an explicit goose dialect.
// The migration files target sqlite; other dialects are for deployments that
// keep the files compatible instead of managing schema out of band.
func UpWithDialect(ctx context.Context, db *sql.DB, dialect string) error {
	goose.SetBaseFS(migrationFS)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "files"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
