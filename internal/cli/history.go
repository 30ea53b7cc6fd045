package cli

import (
	"github.com/spf13/cobra"

	"github.com/lherron/crmq/internal/cli/appctx"
	"github.com/lherron/crmq/internal/primary"
	"github.com/lherron/crmq/internal/render"
)

var historyCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show the primary API change history of a candidate or application",
	Args:  cobra.ExactArgs(1),
	RunE:  appctx.WithApp(appctx.PrimaryOnly(), runHistory),
}

var historyApp bool

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().BoolVar(&historyApp, "app", false, "ID is an application id")
}

func runHistory(app *appctx.App, cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	var (
		entries []primary.HistoryEntry
		err     error
	)
	if historyApp {
		entries, err = app.Primary.ApplicationHistory(ctx, args[0])
	} else {
		entries, err = app.Primary.UserHistory(ctx, args[0])
	}
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []primary.HistoryEntry{}
	}

	r, err := newRenderer(app, cmd)
	if err != nil {
		return err
	}
	switch r.Format() {
	case render.FormatTable, render.FormatTSV:
		// entries have no fixed schema
		return r.RenderYAML(entries)
	}
	return r.Render(entries, nil, nil)
}
