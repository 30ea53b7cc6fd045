package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Dialect is the SQL flavour of the overlay database.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// DB wraps an overlay database connection
type DB struct {
	*sql.DB
	dsn     string
	dialect Dialect
}

// DialectOf picks the dialect for a DSN: postgres:// and postgresql:// URLs
// are Postgres, anything else is a SQLite path (optionally sqlite://path).
func DialectOf(dsn string) Dialect {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return Postgres
	}
	return SQLite
}

// Open opens the overlay database named by dsn. SQLite files get their
// parent directory created and the usual pragmas applied.
func Open(dsn string) (*DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("overlay dsn is empty")
	}
	if DialectOf(dsn) == Postgres {
		conn, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return &DB{DB: conn, dsn: dsn, dialect: Postgres}, nil
	}

	p := strings.TrimPrefix(dsn, "sqlite://")
	memory := p == ":memory:" || strings.Contains(p, "mode=memory")
	if !memory {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", p)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if memory {
		// every pooled connection would otherwise see its own empty database
		conn.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to apply pragma %q: %w", pragma, err)
		}
	}

	return &DB{DB: conn, dsn: p, dialect: SQLite}, nil
}

// Dialect returns the SQL flavour.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Path returns the SQLite file path, or the Postgres DSN with any password
// removed.
func (db *DB) Path() string {
	if db.dialect != Postgres {
		return db.dsn
	}
	u, err := url.Parse(db.dsn)
	if err != nil {
		return "postgres://"
	}
	return u.Redacted()
}

// Rebind rewrites ? placeholders to $1, $2, ... for Postgres. Question marks
// inside single-quoted literals are left alone.
func (db *DB) Rebind(query string) string {
	return Rebind(db.dialect, query)
}

// Rebind is the dialect-explicit form of DB.Rebind.
func Rebind(d Dialect, query string) string {
	if d != Postgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	quoted := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			quoted = !quoted
			b.WriteByte(c)
		case c == '?' && !quoted:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Ping verifies the connection is usable.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s overlay: %w", db.dialect, err)
	}
	return nil
}

func (db *DB) migrationDir() string {
	return path.Join("migrations", string(db.dialect))
}

func (db *DB) migrationFiles() ([]string, error) {
	entries, err := migrationsFS.ReadDir(db.migrationDir())
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}
	var migrations []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			migrations = append(migrations, entry.Name())
		}
	}
	sort.Strings(migrations)
	return migrations, nil
}

func (db *DB) ensureMigrationsTable() error {
	ddl := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
		)
	`
	if db.dialect == Postgres {
		ddl = `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version TEXT PRIMARY KEY,
				applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)
		`
	}
	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}
	return nil
}

// Migrate runs all pending migrations
func (db *DB) Migrate() error {
	_, err := db.MigrateWithInfo()
	return err
}

// MigrateWithInfo runs all pending migrations and returns the list of applied migrations
func (db *DB) MigrateWithInfo() ([]string, error) {
	migrations, err := db.migrationFiles()
	if err != nil {
		return nil, err
	}
	if err := db.ensureMigrationsTable(); err != nil {
		return nil, err
	}

	var applied []string
	for _, migration := range migrations {
		var count int
		err := db.QueryRow(db.Rebind("SELECT COUNT(*) FROM schema_migrations WHERE version = ?"), migration).Scan(&count)
		if err != nil {
			return applied, fmt.Errorf("failed to check migration status for %s: %w", migration, err)
		}
		if count > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile(path.Join(db.migrationDir(), migration))
		if err != nil {
			return applied, fmt.Errorf("failed to read migration %s: %w", migration, err)
		}

		tx, err := db.Begin()
		if err != nil {
			return applied, fmt.Errorf("failed to begin transaction for %s: %w", migration, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return applied, fmt.Errorf("failed to execute migration %s: %w", migration, err)
		}
		if _, err := tx.Exec(db.Rebind("INSERT INTO schema_migrations (version) VALUES (?)"), migration); err != nil {
			tx.Rollback()
			return applied, fmt.Errorf("failed to record migration %s: %w", migration, err)
		}
		if err := tx.Commit(); err != nil {
			return applied, fmt.Errorf("failed to commit migration %s: %w", migration, err)
		}

		applied = append(applied, migration)
	}

	return applied, nil
}

// MigrationStatus returns lists of applied and pending migrations
func (db *DB) MigrationStatus() (applied []string, pending []string, err error) {
	allMigrations, err := db.migrationFiles()
	if err != nil {
		return nil, nil, err
	}

	var tableExists int
	check := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_migrations'`
	if db.dialect == Postgres {
		check = `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = 'schema_migrations'`
	}
	if err := db.QueryRow(check).Scan(&tableExists); err != nil {
		return nil, nil, fmt.Errorf("failed to check for schema_migrations table: %w", err)
	}
	if tableExists == 0 {
		return nil, allMigrations, nil
	}

	appliedSet := make(map[string]bool)
	rows, err := db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query schema_migrations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedSet[version] = true
		applied = append(applied, version)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating migrations: %w", err)
	}

	for _, m := range allMigrations {
		if !appliedSet[m] {
			pending = append(pending, m)
		}
	}

	return applied, pending, nil
}

// RequiresMigrationError checks if the database has pending migrations and returns
// a descriptive error including the database path and current schema version.
// Returns nil if no migrations are pending.
func (db *DB) RequiresMigrationError() error {
	applied, pending, err := db.MigrationStatus()
	if err != nil {
		return fmt.Errorf("failed to check migration status: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	currentVersion := "none"
	if len(applied) > 0 {
		currentVersion = applied[len(applied)-1]
	}

	return fmt.Errorf("overlay database at %s (version: %s) requires migration: %d pending migration(s). Run 'crmqadm migrate' to update",
		db.Path(), currentVersion, len(pending))
}

// Placeholders returns "?, ?, ..." with n markers.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// TimeLayout is the fixed-width UTC layout used for timestamp columns, so
// text ordering matches time ordering.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// FormatTime renders t for a timestamp column.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a timestamp column. Unparseable values give the zero time.
func ParseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
