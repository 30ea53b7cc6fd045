package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lherron/crmq/internal/cli/appctx"
	"github.com/lherron/crmq/internal/render"
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show or set your dashboard card selection",
	Args:  cobra.NoArgs,
	RunE:  appctx.WithApp(appctx.Options{NeedsDB: true, NeedsActor: true}, runPrefsShow),
}

var prefsSetCmd = &cobra.Command{
	Use:   "set [card...]",
	Short: "Replace your selected dashboard cards (none clears them)",
	RunE:  appctx.WithApp(appctx.Options{NeedsDB: true, NeedsActor: true}, runPrefsSet),
}

func init() {
	rootCmd.AddCommand(prefsCmd)
	prefsCmd.AddCommand(prefsSetCmd)
}

func runPrefsShow(app *appctx.App, cmd *cobra.Command, args []string) error {
	prefs, err := app.Store.Preferences.Get(commandContext(cmd), app.Actor)
	if err != nil {
		return err
	}
	r, err := newRenderer(app, cmd)
	if err != nil {
		return err
	}
	if r.Format() == render.FormatTable {
		if len(prefs.SelectedCards) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "(no cards selected)")
			return nil
		}
		return r.RenderList(prefs.SelectedCards)
	}
	return r.Render(prefs, []string{"USER", "CARDS"}, [][]string{{prefs.UserID, strings.Join(prefs.SelectedCards, ",")}})
}

func runPrefsSet(app *appctx.App, cmd *cobra.Command, args []string) error {
	if err := app.Store.Preferences.Save(commandContext(cmd), app.Actor, args); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "saved %d card(s) for %s\n", len(args), app.Actor)
	return nil
}
