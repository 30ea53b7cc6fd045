package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lherron/crmq/internal/config"
	"github.com/lherron/crmq/internal/db"
	"github.com/lherron/crmq/internal/snapshot"
)

const defaultSnapshotPath = "crmq-overlay.json"

var snapshotAdmCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Back up, restore and verify the overlay database",
	Long: `Commands for exporting, importing and verifying JSON snapshots of the
overlay tables (profiles, CRM annotations, assignments, dashboard
preferences and the event log).

Snapshots are dialect independent: export from SQLite and import into
Postgres, or the other way round.`,
}

var snapshotExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the overlay to a JSON snapshot",
	Long: `Export reads every overlay table and writes one JSON document.

The snapshot_rev recorded in the file is a hash of the overlay content,
so two exports of the same state carry the same revision. Use --out -
to write the snapshot to stdout.`,
	RunE: runSnapshotExport,
}

var snapshotImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Load a JSON snapshot into the overlay",
	Long: `Import validates a snapshot and upserts its rows in one transaction.

Use --if-empty to refuse loading into an overlay that already has rows,
--force to clear the overlay tables first and --dry-run to validate only.`,
	RunE: runSnapshotImport,
}

var snapshotVerifyCmd = &cobra.Command{
	Use:   "verify [FILE]",
	Short: "Check that the overlay matches a snapshot",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSnapshotVerify,
}

var (
	snapshotOut        string
	snapshotSkipEvents bool
	snapshotIn         string
	snapshotDryRun     bool
	snapshotIfEmpty    bool
	snapshotForce      bool
	snapshotJSON       bool
)

func init() {
	rootAdmCmd.AddCommand(snapshotAdmCmd)
	snapshotAdmCmd.AddCommand(snapshotExportCmd, snapshotImportCmd, snapshotVerifyCmd)
	snapshotAdmCmd.PersistentFlags().BoolVar(&snapshotJSON, "json", false, "Output result as JSON")

	snapshotExportCmd.Flags().StringVar(&snapshotOut, "out", defaultSnapshotPath, "Output file path (- for stdout)")
	snapshotExportCmd.Flags().BoolVar(&snapshotSkipEvents, "skip-events", false, "Leave the event log out of the snapshot")

	snapshotImportCmd.Flags().StringVar(&snapshotIn, "in", defaultSnapshotPath, "Input file path (- for stdin)")
	snapshotImportCmd.Flags().BoolVar(&snapshotDryRun, "dry-run", false, "Validate only, don't write to the database")
	snapshotImportCmd.Flags().BoolVar(&snapshotIfEmpty, "if-empty", false, "Require the overlay to be empty")
	snapshotImportCmd.Flags().BoolVar(&snapshotForce, "force", false, "Clear the overlay tables before import")
}

// openAdminDB opens the overlay named by --db or the config and refuses to
// continue while migrations are pending.
func openAdminDB(cmd *cobra.Command) (*db.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, exitError(1, fmt.Errorf("failed to load config: %w", err))
	}
	if dsn := flagValue(cmd, "db"); dsn != "" {
		cfg.OverlayDSN = dsn
	}
	if cfg.OverlayDSN == "" {
		return nil, exitError(2, fmt.Errorf("overlay database not specified (use --db or set CRMQ_OVERLAY_DSN)"))
	}
	database, err := db.Open(cfg.OverlayDSN)
	if err != nil {
		return nil, exitError(1, fmt.Errorf("failed to open database: %w", err))
	}
	if err := database.RequiresMigrationError(); err != nil {
		database.Close()
		return nil, exitError(1, err)
	}
	return database, nil
}

func writeResultJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return exitError(1, fmt.Errorf("failed to encode result: %w", err))
	}
	return nil
}

func printCounts(w io.Writer, c snapshot.Counts) {
	fmt.Fprintf(w, "  profiles: %d, annotations: %d, assignments: %d, preferences: %d\n",
		c.Profiles, c.Annotations, c.Assignments, c.Preferences)
	if c.Events > 0 {
		fmt.Fprintf(w, "  events: %d\n", c.Events)
	}
}

func runSnapshotExport(cmd *cobra.Command, args []string) error {
	database, err := openAdminDB(cmd)
	if err != nil {
		return err
	}
	defer database.Close()

	opts := snapshot.ExportOptions{OutputPath: snapshotOut, SkipEvents: snapshotSkipEvents}
	result, err := snapshot.Export(commandContext(cmd), database, opts, cmd.OutOrStdout())
	if err != nil {
		return exitError(1, fmt.Errorf("failed to export snapshot: %w", err))
	}

	// The document itself went to stdout; keep the summary off it.
	out := cmd.OutOrStdout()
	if result.OutputPath == "-" {
		out = cmd.ErrOrStderr()
	}
	if snapshotJSON {
		return writeResultJSON(out, result)
	}
	fmt.Fprintf(out, "✓ Exported snapshot to %s\n", result.OutputPath)
	fmt.Fprintf(out, "  snapshot_rev: %s\n", result.SnapshotRev)
	printCounts(out, result.Counts)
	return nil
}

func runSnapshotImport(cmd *cobra.Command, args []string) error {
	database, err := openAdminDB(cmd)
	if err != nil {
		return err
	}
	defer database.Close()

	opts := snapshot.ImportOptions{
		InputPath: snapshotIn,
		DryRun:    snapshotDryRun,
		IfEmpty:   snapshotIfEmpty,
		Force:     snapshotForce,
	}
	result, err := snapshot.Import(commandContext(cmd), database, opts, cmd.InOrStdin())
	if err != nil {
		if snapshotIfEmpty {
			return exitError(ExitConflict, err)
		}
		return exitError(1, err)
	}

	out := cmd.OutOrStdout()
	if snapshotJSON {
		return writeResultJSON(out, result)
	}
	if result.DryRun {
		fmt.Fprintf(out, "✓ Validated snapshot from %s (dry run)\n", result.InputPath)
	} else {
		fmt.Fprintf(out, "✓ Imported snapshot from %s\n", result.InputPath)
	}
	fmt.Fprintf(out, "  snapshot_rev: %s\n", result.SnapshotRev)
	printCounts(out, result.Counts)
	return nil
}

func runSnapshotVerify(cmd *cobra.Command, args []string) error {
	path := defaultSnapshotPath
	if len(args) == 1 {
		path = args[0]
	}

	database, err := openAdminDB(cmd)
	if err != nil {
		return err
	}
	defer database.Close()

	result, err := snapshot.Verify(commandContext(cmd), database, path, cmd.InOrStdin())
	if err != nil {
		return exitError(1, err)
	}

	out := cmd.OutOrStdout()
	if snapshotJSON {
		if err := writeResultJSON(out, result); err != nil {
			return err
		}
	} else if result.Valid {
		fmt.Fprintf(out, "✓ %s: %s\n", path, result.Message)
		fmt.Fprintf(out, "  snapshot_rev: %s\n", result.SnapshotRev)
	} else {
		fmt.Fprintf(out, "✗ %s: %s\n", path, result.Message)
		fmt.Fprintf(out, "  snapshot_rev: %s\n", result.SnapshotRev)
		fmt.Fprintf(out, "  database_rev: %s\n", result.DatabaseRev)
	}
	if !result.Valid {
		return exitError(1, fmt.Errorf("overlay does not match %s", path))
	}
	return nil
}
