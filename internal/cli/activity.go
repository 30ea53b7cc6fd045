package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lherron/crmq/internal/cli/appctx"
	"github.com/lherron/crmq/internal/domain"
	"github.com/lherron/crmq/internal/parse"
)

var activityCmd = &cobra.Command{
	Use:   "activity <record-id>",
	Short: "Record a call outcome",
	Long: `Records a call disposition, notes and next call date for a record
assigned to you. Header fields (name, target country, target job role) and
profile edits can be saved alongside. Input may come from flags or from a
JSON, YAML or markdown file (-f, "-" for stdin); flags win.

Example file:
  ---
  disposition: CONNECTED_INTERESTED
  next_call_date: 2026-11-02
  profile:
    skills: [welding, forklift]
  ---
  Wants Gulf roles only.`,
	Args: cobra.ExactArgs(1),
	RunE: appctx.WithApp(appctx.WithActor(), runActivity),
}

var (
	activityApps    bool
	activityFile    string
	activityFormat  string
	activityFlagsIn domain.Activity
)

func init() {
	rootCmd.AddCommand(activityCmd)
	f := activityCmd.Flags()
	f.BoolVar(&activityApps, "apps", false, "ID is an application id")
	f.StringVarP(&activityFile, "file", "f", "", "Read the activity from a file (- for stdin)")
	f.StringVar(&activityFormat, "format", "", "File format: json, yaml, md (default: detect)")
	f.StringVarP(&activityFlagsIn.Disposition, "disposition", "d", "", "Call disposition")
	f.StringVarP(&activityFlagsIn.Notes, "notes", "n", "", "Call notes")
	f.StringVar(&activityFlagsIn.NextCallDate, "next-call", "", "Next call date (YYYY-MM-DD)")
	f.StringVar(&activityFlagsIn.FullName, "name", "", "Corrected full name")
	f.StringVar(&activityFlagsIn.TargetCountry, "country", "", "Target country name")
	f.StringVar(&activityFlagsIn.TargetJobRole, "job-role", "", "Target job role name")
}

func runActivity(app *appctx.App, cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	act, err := readActivity(cmd.InOrStdin())
	if err != nil {
		return err
	}
	if err := act.Validate(); err != nil {
		return err
	}
	if err := resolveTargets(ctx, app, &act); err != nil {
		return err
	}

	v, err := recordView(ctx, app, app.Actor, datasetOf(activityApps), args, stderrNotifier(cmd))
	if err != nil {
		return err
	}
	defer v.Close()

	if err := v.RecordActivity(ctx, args[0], act); err != nil {
		return err
	}
	rec, _ := v.Record(args[0])
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s", args[0], orNone(rec.Disposition))
	if rec.NextCallDate != "" {
		fmt.Fprintf(cmd.OutOrStdout(), ", next call %s", rec.NextCallDate)
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}

// readActivity merges the optional file with the flag values.
func readActivity(stdin io.Reader) (domain.Activity, error) {
	var act domain.Activity
	if activityFile != "" {
		var (
			data []byte
			err  error
		)
		if activityFile == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(activityFile)
		}
		if err != nil {
			return act, fmt.Errorf("read activity: %w", err)
		}
		parsed, err := parse.Parse(data, activityFormat)
		if err != nil {
			return act, err
		}
		act = *parsed
	}

	in := activityFlagsIn
	override := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	override(&act.Disposition, in.Disposition)
	override(&act.Notes, in.Notes)
	override(&act.NextCallDate, in.NextCallDate)
	override(&act.FullName, in.FullName)
	override(&act.TargetCountry, in.TargetCountry)
	override(&act.TargetJobRole, in.TargetJobRole)
	return act, nil
}

// resolveTargets fills target ids from the primary reference lists when only
// names were given. Unknown names keep an empty id.
func resolveTargets(ctx context.Context, app *appctx.App, act *domain.Activity) error {
	if act.TargetCountry != "" && act.TargetCountryID == "" {
		refs, err := app.Primary.Countries(ctx)
		if err != nil {
			return fmt.Errorf("list countries: %w", err)
		}
		act.TargetCountryID = refID(refs, act.TargetCountry)
	}
	if act.TargetJobRole != "" && act.TargetJobRoleID == "" {
		refs, err := app.Primary.JobRoles(ctx)
		if err != nil {
			return fmt.Errorf("list job roles: %w", err)
		}
		act.TargetJobRoleID = refID(refs, act.TargetJobRole)
	}
	return nil
}

func refID(refs []domain.NamedRef, name string) string {
	for _, r := range refs {
		if strings.EqualFold(r.Name, name) {
			return r.ID
		}
	}
	return ""
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
