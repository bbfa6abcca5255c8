package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/syncagent/internal/agent/migrations"
	"github.com/dmitrijs2005/syncagent/internal/agent/repositories/history"
	"github.com/dmitrijs2005/syncagent/internal/agent/repositories/metadata"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// DB bundles the open database with its repositories.
type DB struct {
	SQL      *sql.DB
	Metadata metadata.Repository
	History  history.Repository
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Open opens (creating if needed) the SQLite database at dsn and migrates it.
func Open(ctx context.Context, dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serialises writers anyway; a single connection also keeps
	// ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{
		SQL:      db,
		Metadata: metadata.NewSQLiteRepository(db),
		History:  history.NewSQLiteRepository(db),
	}, nil
}

func (d *DB) Close() error {
	return d.SQL.Close()
}
