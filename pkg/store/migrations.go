package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
)

//go:embed migrations
var migrationsFS embed.FS

// runMigrations applies every embedded *.sql file once, in filename order,
// tracking progress in a schema_migrations table. No client/server migration
// driver in the dependency set pairs with modernc.org/sqlite's pure-Go
// driver, so this drives the same go:embed + ordered-apply shape directly
// over database/sql instead.
func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return wrapPersistence(fmt.Errorf("create schema_migrations: %w", err))
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return wrapPersistence(fmt.Errorf("read migrations dir: %w", err))
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var applied int
		err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE filename = ?`, name).Scan(&applied)
		if err != nil {
			return wrapPersistence(fmt.Errorf("check migration %s: %w", name, err))
		}
		if applied > 0 {
			continue
		}

		sqlBytes, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return wrapPersistence(fmt.Errorf("read migration %s: %w", name, err))
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return wrapPersistence(fmt.Errorf("begin migration tx %s: %w", name, err))
		}
		if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
			_ = tx.Rollback()
			return wrapPersistence(fmt.Errorf("apply migration %s: %w", name, err))
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (filename, applied_at) VALUES (?, datetime('now'))`, name); err != nil {
			_ = tx.Rollback()
			return wrapPersistence(fmt.Errorf("record migration %s: %w", name, err))
		}
		if err := tx.Commit(); err != nil {
			return wrapPersistence(fmt.Errorf("commit migration %s: %w", name, err))
		}
		slog.Info("applied migration", "file", name)
	}
	return nil
}
