package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	gooseDB "github.com/pressly/goose/v3/database"
)

// DefaultMigrationTable is used when no table name is configured.
const DefaultMigrationTable = "goose_db_version"

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies all pending migrations embedded in the binary.
func Migrate(ctx context.Context, db *sql.DB, table string) error {
	provider, err := newProvider(db, table)
	if err != nil {
		return err
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Rollback reverts the most recently applied migration.
func Rollback(ctx context.Context, db *sql.DB, table string) error {
	provider, err := newProvider(db, table)
	if err != nil {
		return err
	}
	if _, err := provider.Down(ctx); err != nil {
		return fmt.Errorf("rollback migration: %w", err)
	}
	return nil
}

// Status lists every known migration together with its applied state.
func Status(ctx context.Context, db *sql.DB, table string) ([]*goose.MigrationStatus, error) {
	provider, err := newProvider(db, table)
	if err != nil {
		return nil, err
	}
	return provider.Status(ctx)
}

func newProvider(db *sql.DB, table string) (*goose.Provider, error) {
	if table == "" {
		table = DefaultMigrationTable
	}
	store, err := gooseDB.NewStore(gooseDB.DialectPostgres, table)
	if err != nil {
		return nil, fmt.Errorf("init migration store: %w", err)
	}
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	provider, err := goose.NewProvider("", db, fsys, goose.WithStore(store))
	if err != nil {
		return nil, fmt.Errorf("init migration provider: %w", err)
	}
	return provider, nil
}
