package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lherron/crmq/internal/cli/appctx"
	"github.com/lherron/crmq/internal/domain"
	"github.com/lherron/crmq/internal/parse"
)

var setCmd = &cobra.Command{
	Use:   "set <user-id> field=value...",
	Short: "Edit candidate profile fields",
	Long: `Saves inline profile edits as local overrides. Empty values are ignored.

Fields: ` + strings.Join(parse.InlineFields, ", ") + `

Examples:
  crmq set 65f0c1 skills="welding, forklift" gender=Male
  crmq set 65f0c1 language="Hindi | English, Arabic"
  crmq set 65f0c1 location="Kochi, Kerala, India"`,
	Args: cobra.MinimumNArgs(2),
	RunE: appctx.WithApp(appctx.WithActor(), runSet),
}

func init() {
	rootCmd.AddCommand(setCmd)
}

func runSet(app *appctx.App, cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	userID := args[0]

	type edit struct{ field, value string }
	edits := make([]edit, 0, len(args)-1)
	for _, arg := range args[1:] {
		field, value, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("invalid edit %q: expected field=value", arg)
		}
		edits = append(edits, edit{strings.TrimSpace(field), value})
	}

	v, err := recordView(ctx, app, app.Actor, domain.DatasetUsers, []string{userID}, stderrNotifier(cmd))
	if err != nil {
		return err
	}
	defer v.Close()

	for _, e := range edits {
		if err := v.UpdateField(ctx, userID, e.field, e.value); err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: updated %d field(s)\n", userID, len(edits))
	return nil
}
