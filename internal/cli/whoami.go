package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/crmq/internal/cli/appctx"
	"github.com/lherron/crmq/internal/domain"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Print the acting recruiter",
	Long:  `Displays the recruiter email used for assignments and activity, and the endpoints crmq talks to.`,
	Args:  cobra.NoArgs,
	RunE:  appctx.WithApp(appctx.Options{}, runWhoami),
}

var whoamiJSON bool

func init() {
	rootCmd.AddCommand(whoamiCmd)
	whoamiCmd.Flags().BoolVar(&whoamiJSON, "json", false, "Output as JSON")
}

func runWhoami(app *appctx.App, cmd *cobra.Command, args []string) error {
	if app.Actor == "" {
		return domain.ErrNoIdentity
	}
	if whoamiJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]string{
			"actor":       app.Actor,
			"api_url":     app.Config.APIURL,
			"overlay_dsn": redactDSN(app.Config.OverlayDSN),
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), app.Actor)
	fmt.Fprintf(cmd.OutOrStdout(), "  api:     %s\n", app.Config.APIURL)
	fmt.Fprintf(cmd.OutOrStdout(), "  overlay: %s\n", redactDSN(app.Config.OverlayDSN))
	return nil
}
