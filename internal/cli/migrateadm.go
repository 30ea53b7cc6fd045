package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lherron/crmq/internal/config"
	"github.com/lherron/crmq/internal/db"
)

var migrateAdmCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run any pending overlay database migrations",
	Long: `Migrate applies any pending SQL migrations to the overlay database.

Migrations are embedded in the binary, one set per dialect (SQLite and
Postgres), and tracked via the schema_migrations table. Each migration
file is applied exactly once.

Use --dry-run to see which migrations would be applied without running them.
Use --status to show the current migration status.`,
	RunE: runMigrateAdm,
}

var (
	migrateDryRun bool
	migrateStatus bool
)

func init() {
	rootAdmCmd.AddCommand(migrateAdmCmd)

	migrateAdmCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "Show which migrations would be applied without running them")
	migrateAdmCmd.Flags().BoolVar(&migrateStatus, "status", false, "Show current migration status")
}

func runMigrateAdm(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return exitError(1, fmt.Errorf("failed to load config: %w", err))
	}
	if dsn := flagValue(cmd, "db"); dsn != "" {
		cfg.OverlayDSN = dsn
	}
	if cfg.OverlayDSN == "" {
		return exitError(2, fmt.Errorf("overlay database not specified (use --db or set CRMQ_OVERLAY_DSN)"))
	}

	database, err := db.Open(cfg.OverlayDSN)
	if err != nil {
		return exitError(1, fmt.Errorf("failed to open database: %w", err))
	}
	defer database.Close()

	out := cmd.OutOrStdout()
	if migrateStatus {
		return showMigrationStatus(out, database)
	}
	if migrateDryRun {
		return showPendingMigrations(out, database)
	}

	applied, err := database.MigrateWithInfo()
	if err != nil {
		return exitError(1, fmt.Errorf("failed to run migrations: %w", err))
	}
	if len(applied) == 0 {
		fmt.Fprintln(out, "Database is up to date. No migrations to apply.")
		return nil
	}
	for _, m := range applied {
		fmt.Fprintf(out, "✓ Applied migration: %s\n", m)
	}
	fmt.Fprintf(out, "\nApplied %d migration(s) to %s database.\n", len(applied), database.Dialect())
	return nil
}

func showMigrationStatus(out io.Writer, database *db.DB) error {
	applied, pending, err := database.MigrationStatus()
	if err != nil {
		return exitError(1, fmt.Errorf("failed to get migration status: %w", err))
	}
	if len(applied) == 0 && len(pending) == 0 {
		fmt.Fprintln(out, "No migrations found.")
		return nil
	}
	if len(applied) > 0 {
		fmt.Fprintln(out, "Applied migrations:")
		for _, m := range applied {
			fmt.Fprintf(out, "  ✓ %s\n", m)
		}
	}
	if len(pending) > 0 {
		if len(applied) > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintln(out, "Pending migrations:")
		for _, m := range pending {
			fmt.Fprintf(out, "  ○ %s\n", m)
		}
	}
	return nil
}

func showPendingMigrations(out io.Writer, database *db.DB) error {
	_, pending, err := database.MigrationStatus()
	if err != nil {
		return exitError(1, fmt.Errorf("failed to get migration status: %w", err))
	}
	if len(pending) == 0 {
		fmt.Fprintln(out, "No pending migrations. Database is up to date.")
		return nil
	}
	fmt.Fprintln(out, "Pending migrations (would be applied):")
	for _, m := range pending {
		fmt.Fprintf(out, "  ○ %s\n", m)
	}
	fmt.Fprintf(out, "\nTotal: %d migration(s) would be applied.\n", len(pending))
	return nil
}

func flagValue(cmd *cobra.Command, name string) string {
	if f := cmd.Flag(name); f != nil {
		return f.Value.String()
	}
	return ""
}
