package cli

import (
	"bytes"
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"github.com/lherron/crmq/internal/cli/appctx"
	"github.com/lherron/crmq/internal/domain"
	"github.com/lherron/crmq/internal/reconcile"
	"github.com/lherron/crmq/internal/render"
)

var showCmd = &cobra.Command{
	Use:     "show <user-id>",
	Aliases: []string{"cat"},
	Short:   "Show one candidate with local overrides applied",
	Args:    cobra.ExactArgs(1),
	RunE:    appctx.WithApp(appctx.DefaultOptions(), runShow),
}

var diffCmd = &cobra.Command{
	Use:   "diff <user-id>",
	Short: "Show what the local overlay changes for a candidate",
	Long: `Prints a unified diff between the candidate as the primary API returns
it and the merged record with local overrides applied.`,
	Args: cobra.ExactArgs(1),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runDiff),
}

var diffContext int

func init() {
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(diffCmd)
	diffCmd.Flags().IntVarP(&diffContext, "unified", "U", 3, "Lines of context")
}

// loadCandidate returns the primary-only and merged forms of one candidate.
func loadCandidate(app *appctx.App, cmd *cobra.Command, userID string) (primaryOnly, merged domain.MergedRecord, err error) {
	ctx := commandContext(cmd)
	c, err := app.Primary.UserDetails(ctx, userID)
	if err != nil {
		return primaryOnly, merged, err
	}
	records, err := app.Pipeline().MergeUsers(ctx, []domain.Candidate{c})
	if err != nil {
		return primaryOnly, merged, err
	}
	return reconcile.PrimaryOnly([]domain.Candidate{c})[0], records[0], nil
}

func runShow(app *appctx.App, cmd *cobra.Command, args []string) error {
	_, rec, err := loadCandidate(app, cmd, args[0])
	if err != nil {
		return err
	}
	r, err := newRenderer(app, cmd)
	if err != nil {
		return err
	}
	if r.Format() == render.FormatTable {
		return r.RenderYAML(rec)
	}
	headers, rows := render.RecordTable(domain.DatasetUsers, []domain.MergedRecord{rec})
	return r.Render(rec, headers, rows)
}

func runDiff(app *appctx.App, cmd *cobra.Command, args []string) error {
	before, after, err := loadCandidate(app, cmd, args[0])
	if err != nil {
		return err
	}
	a, err := yamlText(before)
	if err != nil {
		return err
	}
	b, err := yamlText(after)
	if err != nil {
		return err
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: "primary/" + args[0],
		ToFile:   "overlay/" + args[0],
		Context:  diffContext,
	})
	if err != nil {
		return fmt.Errorf("failed to generate diff: %w", err)
	}
	if diff == "" {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: no local overrides\n", args[0])
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), diff)
	return nil
}

func yamlText(v any) (string, error) {
	var buf bytes.Buffer
	if err := render.NewRenderer(&buf, render.Options{Format: render.FormatYAML}).RenderYAML(v); err != nil {
		return "", err
	}
	return buf.String(), nil
}
