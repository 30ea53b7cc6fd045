package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/lherron/crmq/internal/cli/appctx"
	"github.com/lherron/crmq/internal/domain"
	"github.com/lherron/crmq/internal/render"
)

var countriesCmd = &cobra.Command{
	Use:   "countries",
	Short: "List target countries known to the primary API",
	Args:  cobra.NoArgs,
	RunE:  appctx.WithApp(appctx.PrimaryOnly(), runRefs("countries")),
}

var jobRolesCmd = &cobra.Command{
	Use:   "job-roles",
	Short: "List target job roles known to the primary API",
	Args:  cobra.NoArgs,
	RunE:  appctx.WithApp(appctx.PrimaryOnly(), runRefs("job-roles")),
}

var dispositionsCmd = &cobra.Command{
	Use:   "dispositions",
	Short: "List the call dispositions",
	Args:  cobra.NoArgs,
	RunE:  appctx.WithApp(appctx.Options{}, runDispositions),
}

func init() {
	rootCmd.AddCommand(countriesCmd)
	rootCmd.AddCommand(jobRolesCmd)
	rootCmd.AddCommand(dispositionsCmd)
}

func runRefs(kind string) appctx.RunFunc {
	return func(app *appctx.App, cmd *cobra.Command, args []string) error {
		var list func(context.Context) ([]domain.NamedRef, error)
		switch kind {
		case "countries":
			list = app.Primary.Countries
		default:
			list = app.Primary.JobRoles
		}
		refs, err := list(commandContext(cmd))
		if err != nil {
			return err
		}
		r, err := newRenderer(app, cmd)
		if err != nil {
			return err
		}
		headers, rows := render.RefTable(refs)
		return r.Render(refs, headers, rows)
	}
}

func runDispositions(app *appctx.App, cmd *cobra.Command, args []string) error {
	r, err := newRenderer(app, cmd)
	if err != nil {
		return err
	}
	if r.Format() == render.FormatTable {
		return r.RenderList(domain.Dispositions)
	}
	rows := make([][]string, len(domain.Dispositions))
	for i, d := range domain.Dispositions {
		rows[i] = []string{d}
	}
	return r.Render(domain.Dispositions, []string{"DISPOSITION"}, rows)
}
