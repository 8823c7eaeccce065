package store

import (
	"context"
	"testing"
	"testing/fstest"
)

// --- Migrate ---

func TestMigrate(t *testing.T) {
	skipIfNoPostgres(t)
	ctx := context.Background()

	t.Run("applies migration and records version", func(t *testing.T) {
		testFS := fstest.MapFS{
			"900_test_migrate.sql": &fstest.MapFile{
				Data: []byte("CREATE TABLE test_migrate_tbl (id INT);"),
			},
		}
		t.Cleanup(func() {
			testPostgres.pool.Exec(ctx, "DROP TABLE IF EXISTS test_migrate_tbl")
			testPostgres.pool.Exec(ctx, "DELETE FROM schema_migrations WHERE version = $1", "900_test_migrate.sql")
		})

		if err := testPostgres.Migrate(ctx, testFS); err != nil {
			t.Fatalf("Migrate failed: %v", err)
		}

		var tableExists bool
		err := testPostgres.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = 'test_migrate_tbl')",
		).Scan(&tableExists)
		if err != nil {
			t.Fatalf("checking table existence: %v", err)
		}
		if !tableExists {
			t.Error("expected test_migrate_tbl to exist after migration")
		}

		var recorded bool
		err = testPostgres.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)",
			"900_test_migrate.sql",
		).Scan(&recorded)
		if err != nil {
			t.Fatalf("checking schema_migrations: %v", err)
		}
		if !recorded {
			t.Error("expected version to be recorded")
		}
	})

	t.Run("second run skips applied files", func(t *testing.T) {
		testFS := fstest.MapFS{
			"901_test_migrate_once.sql": &fstest.MapFile{
				// Fails if executed twice.
				Data: []byte("CREATE TABLE test_migrate_once (id INT);"),
			},
		}
		t.Cleanup(func() {
			testPostgres.pool.Exec(ctx, "DROP TABLE IF EXISTS test_migrate_once")
			testPostgres.pool.Exec(ctx, "DELETE FROM schema_migrations WHERE version = $1", "901_test_migrate_once.sql")
		})

		if err := testPostgres.Migrate(ctx, testFS); err != nil {
			t.Fatalf("first Migrate: %v", err)
		}
		if err := testPostgres.Migrate(ctx, testFS); err != nil {
			t.Fatalf("second Migrate: %v", err)
		}
	})

	t.Run("failed migration is rolled back and not recorded", func(t *testing.T) {
		testFS := fstest.MapFS{
			"902_test_migrate_bad.sql": &fstest.MapFile{
				Data: []byte("CREATE TABLE test_migrate_bad (id INT); SELECT * FROM no_such_table;"),
			},
		}
		t.Cleanup(func() {
			testPostgres.pool.Exec(ctx, "DROP TABLE IF EXISTS test_migrate_bad")
		})

		if err := testPostgres.Migrate(ctx, testFS); err == nil {
			t.Fatal("expected error from bad migration, got nil")
		}

		var tableExists bool
		testPostgres.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = 'test_migrate_bad')",
		).Scan(&tableExists)
		if tableExists {
			t.Error("expected test_migrate_bad to be rolled back")
		}
	})
}
