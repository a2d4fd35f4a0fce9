package repository

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql migrations/mysql/*.sql
var migrationsFS embed.FS

// Dialect names accepted by Migrate.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
)

// Migrate applies the embedded listing schema migrations for dialect.
// It returns the number of migrations applied.
func Migrate(ctx context.Context, db *sql.DB, dialect string) (int, error) {
	var gd database.Dialect
	switch dialect {
	case DialectSQLite:
		gd = database.DialectSQLite3
	case DialectPostgres:
		gd = database.DialectPostgres
	case DialectMySQL:
		gd = database.DialectMySQL
	default:
		return 0, fmt.Errorf("unsupported migration dialect %q", dialect)
	}

	fsys, err := fs.Sub(migrationsFS, "migrations/"+dialect)
	if err != nil {
		return 0, err
	}

	provider, err := goose.NewProvider(gd, db, fsys)
	if err != nil {
		return 0, fmt.Errorf("failed to create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to apply migrations: %w", err)
	}
	return len(results), nil
}
