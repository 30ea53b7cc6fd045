package db_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/lherron/crmq/internal/db"
)

func TestRequiresMigrationError(t *testing.T) {
	// Create a temporary database with only some migrations applied
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	// Open and create schema_migrations table with only first migration
	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("could not open db: %v", err)
	}
	defer database.Close()

	// Create schema_migrations table and add only first migration
	_, err = database.Exec(`
		CREATE TABLE schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
		)
	`)
	if err != nil {
		t.Fatalf("could not create schema_migrations: %v", err)
	}

	_, err = database.Exec(`INSERT INTO schema_migrations (version) VALUES ('000001_overlay.sql')`)
	if err != nil {
		t.Fatalf("could not insert migration: %v", err)
	}

	// Test RequiresMigrationError
	migErr := database.RequiresMigrationError()
	if migErr == nil {
		t.Fatal("expected migration error, got nil")
	}

	errStr := migErr.Error()
	t.Logf("Error message: %s", errStr)

	// Check that error contains db path
	if !strings.Contains(errStr, dbPath) {
		t.Errorf("error should contain db path '%s', got: %s", dbPath, errStr)
	}

	// Check that error contains version
	if !strings.Contains(errStr, "000001_overlay.sql") {
		t.Errorf("error should contain version '000001_overlay.sql', got: %s", errStr)
	}

	// Check that error mentions pending migrations
	if !strings.Contains(errStr, "pending migration") {
		t.Errorf("error should mention pending migrations, got: %s", errStr)
	}

	// Check that error suggests crmqadm migrate
	if !strings.Contains(errStr, "crmqadm migrate") {
		t.Errorf("error should suggest 'crmqadm migrate', got: %s", errStr)
	}
}

func TestRequiresMigrationErrorFreshDB(t *testing.T) {
	// Test with no migrations applied (fresh db)
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("could not open db: %v", err)
	}
	defer database.Close()

	migErr := database.RequiresMigrationError()
	if migErr == nil {
		t.Fatal("expected migration error for fresh db, got nil")
	}

	errStr := migErr.Error()
	t.Logf("Fresh DB Error: %s", errStr)

	if !strings.Contains(errStr, "version: none") {
		t.Errorf("fresh db error should contain 'version: none', got: %s", errStr)
	}

	if !strings.Contains(errStr, dbPath) {
		t.Errorf("error should contain db path '%s', got: %s", dbPath, errStr)
	}
}

func TestRequiresMigrationErrorFullyMigrated(t *testing.T) {
	// Test with fully migrated database (should return nil)
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("could not open db: %v", err)
	}
	defer database.Close()

	// Run all migrations
	if err := database.Migrate(); err != nil {
		t.Fatalf("could not run migrations: %v", err)
	}

	// Should return nil when fully migrated
	migErr := database.RequiresMigrationError()
	if migErr != nil {
		t.Errorf("expected nil for fully migrated db, got: %v", migErr)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "overlay.db"))
	if err != nil {
		t.Fatalf("could not open db: %v", err)
	}
	defer database.Close()

	first, err := database.MigrateWithInfo()
	if err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if len(first) != 2 {
		t.Errorf("expected 2 migrations applied, got %v", first)
	}
	second, err := database.MigrateWithInfo()
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("expected nothing applied on rerun, got %v", second)
	}

	for _, table := range []string{"user_profiles", "userflow_crm", "user_assignments", "dashboard_preferences", "crm_events"} {
		var n int
		if err := database.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n); err != nil {
			t.Fatalf("lookup %s: %v", table, err)
		}
		if n != 1 {
			t.Errorf("table %s missing", table)
		}
	}
}

func TestOpenMemory(t *testing.T) {
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer database.Close()
	if err := database.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if database.Dialect() != db.SQLite {
		t.Errorf("dialect = %s", database.Dialect())
	}
}

func TestOpenEmptyDSN(t *testing.T) {
	if _, err := db.Open("  "); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}
