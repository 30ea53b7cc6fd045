package cli

import (
	"github.com/spf13/cobra"

	"github.com/lherron/crmq/internal/cli/appctx"
	"github.com/lherron/crmq/internal/view"
)

var assigneesCmd = &cobra.Command{
	Use:   "assignees [users|apps]",
	Short: "List known assignees",
	Long: `Lists every recruiter that holds an assignment in the overlay or on
the first page of the dataset. Useful as values for --assignee.`,
	Args: cobra.MaximumNArgs(1),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runAssignees),
}

func init() {
	rootCmd.AddCommand(assigneesCmd)
}

func runAssignees(app *appctx.App, cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	dataset, err := parseDataset(args)
	if err != nil {
		return err
	}
	v, err := view.New(view.Config{Dataset: dataset, Page: 1, PageSize: app.Config.PageSize, Actor: app.Actor},
		app.Pipeline(), app.Store, view.WithLogger(app.Log))
	if err != nil {
		return err
	}
	defer v.Close()
	if err := v.Refresh(ctx); err != nil {
		return err
	}
	who, err := v.Assignees(ctx)
	if err != nil {
		return err
	}

	r, err := newRenderer(app, cmd)
	if err != nil {
		return err
	}
	rows := make([][]string, len(who))
	for i, w := range who {
		rows[i] = []string{w}
	}
	return r.Render(who, []string{"ASSIGNEE"}, rows)
}
