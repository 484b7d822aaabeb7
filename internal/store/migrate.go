package store

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"

	"github.com/jackc/pgx/v5"
)

// migrationLockID is the pg_advisory_xact_lock key serialising migrations
// when several instances start at once.
const migrationLockID = 7_286_410_001

// Migrate applies all pending *.sql files from migrationsFS in lexical order.
// Each file runs in its own transaction together with its schema_migrations row,
// so a failing file leaves no partial schema behind. Applied files are skipped.
func (s *PostgresStore) Migrate(ctx context.Context, migrationsFS fs.FS) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	files, err := fs.Glob(migrationsFS, "*.sql")
	if err != nil {
		return fmt.Errorf("reading migration files: %w", err)
	}
	sort.Strings(files)

	for _, name := range files {
		applied, err := s.applyMigration(ctx, migrationsFS, name)
		if err != nil {
			return err
		}
		if applied {
			slog.Info("migration applied", "version", name)
		} else {
			slog.Debug("migration already applied, skipping", "version", name)
		}
	}
	return nil
}

// applyMigration runs one file under the advisory lock. Returns false if it was already recorded.
func (s *PostgresStore) applyMigration(ctx context.Context, migrationsFS fs.FS, name string) (bool, error) {
	applied := false
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockID); err != nil {
			return fmt.Errorf("locking for migration %s: %w", name, err)
		}

		var exists bool
		if err := tx.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", name,
		).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %s: %w", name, err)
		}
		if exists {
			return nil
		}

		sql, err := fs.ReadFile(migrationsFS, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", name); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		applied = true
		return nil
	})
	return applied, err
}
