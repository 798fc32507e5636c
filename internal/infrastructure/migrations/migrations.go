package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

// Dir is the directory inside FS holding the goose migrations.
const Dir = "sql"

//go:embed sql/*.sql
var FS embed.FS

// Configure points goose at the embedded migrations for MySQL.
func Configure() error {
	goose.SetBaseFS(FS)
	goose.SetTableName("goose_db_version")
	if err := goose.SetDialect("mysql"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return nil
}

// Up applies all pending migrations.
func Up(ctx context.Context, db *sql.DB) error {
	if err := Configure(); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, Dir)
}
