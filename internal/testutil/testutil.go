// Package testutil holds helpers shared by package tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lherron/crmq/internal/db"
	"github.com/lherron/crmq/internal/store"
)

// TempDB creates a migrated SQLite overlay database in a temp directory.
func TempDB(t *testing.T) (*db.DB, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "overlay.db")
	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	return database, dbPath
}

// TempStore wraps TempDB in an overlay store.
func TempStore(t *testing.T) *store.Store {
	t.Helper()
	database, _ := TempDB(t)
	return store.New(database)
}

// ObservedLogger returns a logger whose entries at level and above can be
// inspected by the test.
func ObservedLogger(level zap.AtomicLevel) (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core), logs
}

// WriteFile writes content to a file in dir and returns its path.
func WriteFile(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
	return path
}

// ReadFile reads content from a file
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(data)
}
