package store

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
)

// migrationLockID is the pg_advisory_xact_lock key shared by every instance running Migrate.
const migrationLockID = 727_001

// Migrate applies pending SQL migrations from migrationsFS in filename order.
// Each file runs in its own transaction under an advisory lock, so two replicas
// starting together apply each file exactly once. Already-applied files are skipped.
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

	entries, err := fs.Glob(migrationsFS, "*.sql")
	if err != nil {
		return fmt.Errorf("reading migration files: %w", err)
	}
	sort.Strings(entries)

	applied := 0
	for _, filename := range entries {
		ran, err := s.applyMigration(ctx, migrationsFS, filename)
		if err != nil {
			return err
		}
		if ran {
			applied++
			slog.Info("migration applied", "version", filename)
		}
	}

	slog.Info("migrations up to date", "applied", applied, "total", len(entries))
	return nil
}

// applyMigration runs one file if it has not been recorded yet.
// Returns false when the file was already applied.
func (s *PostgresStore) applyMigration(ctx context.Context, migrationsFS fs.FS, filename string) (bool, error) {
	sql, err := fs.ReadFile(migrationsFS, filename)
	if err != nil {
		return false, fmt.Errorf("reading migration %s: %w", filename, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("beginning transaction for %s: %w", filename, err)
	}
	// No-op after Commit.
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockID); err != nil {
		return false, fmt.Errorf("locking for %s: %w", filename, err)
	}

	var exists bool
	if err := tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", filename,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking migration %s: %w", filename, err)
	}
	if exists {
		return false, nil
	}

	if _, err := tx.Exec(ctx, string(sql)); err != nil {
		return false, fmt.Errorf("executing migration %s: %w", filename, err)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", filename); err != nil {
		return false, fmt.Errorf("recording migration %s: %w", filename, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("committing migration %s: %w", filename, err)
	}
	return true, nil
}
