package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lherron/crmq/internal/cli/appctx"
	"github.com/lherron/crmq/internal/domain"
	"github.com/lherron/crmq/internal/events"
)

var logCmd = &cobra.Command{
	Use:   "log [user-id]",
	Short: "Show the local overlay change log",
	Long: `Lists overlay writes (assignments, annotations, profile edits and
preferences), newest first.

Examples:
  crmq log                    # latest changes
  crmq log 65f0c1             # changes for one candidate
  crmq log --since 24h --mine`,
	Args: cobra.MaximumNArgs(1),
	RunE: appctx.WithApp(appctx.Options{NeedsDB: true}, runLog),
}

var (
	logSince string
	logLimit int
	logActor string
	logMine  bool
)

func init() {
	rootCmd.AddCommand(logCmd)
	logCmd.Flags().StringVar(&logSince, "since", "", "Only newer entries: a duration (24h) or RFC3339 timestamp")
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 50, "Maximum entries (0 = no limit)")
	logCmd.Flags().StringVar(&logActor, "actor", "", "Only entries by this recruiter")
	logCmd.Flags().BoolVar(&logMine, "mine", false, "Only my entries")
}

func runLog(app *appctx.App, cmd *cobra.Command, args []string) error {
	q := events.ListQuery{Actor: logActor, Limit: logLimit}
	if len(args) == 1 {
		q.UserID = args[0]
	}
	if logMine {
		if app.Actor == "" {
			return domain.ErrNoIdentity
		}
		q.Actor = app.Actor
	}
	if logSince != "" {
		since, err := parseSince(logSince, time.Now())
		if err != nil {
			return err
		}
		q.Since = since
	}

	list, err := events.List(commandContext(cmd), app.DB, q)
	if err != nil {
		return err
	}
	r, err := newRenderer(app, cmd)
	if err != nil {
		return err
	}
	rows := make([][]string, len(list))
	for i, e := range list {
		rows[i] = []string{e.CreatedAt.Local().Format(time.DateTime), e.Actor, e.UserID, e.Kind}
	}
	return r.Render(list, []string{"TIME", "ACTOR", "USER", "KIND"}, rows)
}

// parseSince accepts a duration back from now or an RFC3339 timestamp.
func parseSince(s string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	t, err := domain.ValidateTimestamp(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: %w", s, err)
	}
	return t, nil
}
