package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/crmq/internal/bulk"
	"github.com/lherron/crmq/internal/cli/appctx"
)

var assignCmd = &cobra.Command{
	Use:   "assign <record-id>...",
	Short: "Claim unassigned records",
	Long: `Assigns each record to the acting recruiter. Records already assigned
to someone (including you) are refused. Application-level assignments are
also mirrored to the primary API.`,
	Args: cobra.MinimumNArgs(1),
	RunE: appctx.WithApp(appctx.WithActor(), runAssign),
}

var (
	assignApps            bool
	assignJobs            int
	assignContinueOnError bool
)

func init() {
	rootCmd.AddCommand(assignCmd)
	assignCmd.Flags().BoolVar(&assignApps, "apps", false, "IDs are application ids")
	assignCmd.Flags().IntVarP(&assignJobs, "jobs", "j", 1, "Parallel workers")
	assignCmd.Flags().BoolVar(&assignContinueOnError, "continue-on-error", false, "Keep going after a failure")
}

func runAssign(app *appctx.App, cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	v, err := recordView(ctx, app, app.Actor, datasetOf(assignApps), args, stderrNotifier(cmd))
	if err != nil {
		return err
	}
	defer v.Close()

	if len(args) == 1 {
		if err := v.Assign(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s assigned to %s\n", args[0], app.Actor)
		return nil
	}

	op := &bulk.Operation{Jobs: assignJobs, ContinueOnError: assignContinueOnError, Progress: cmd.ErrOrStderr()}
	result := op.Execute(ctx, args, func(ctx context.Context, id string) error {
		return v.Assign(ctx, id)
	})
	result.PrintSummary(cmd.OutOrStdout())
	if code := result.ExitCode(); code != 0 {
		return exitError(code, fmt.Errorf("assigned %d of %d records", result.Succeeded, result.TotalItems))
	}
	return nil
}
