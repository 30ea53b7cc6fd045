package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lherron/crmq/internal/cli/appctx"
	"github.com/lherron/crmq/internal/domain"
	"github.com/lherron/crmq/internal/notify"
	"github.com/lherron/crmq/internal/render"
	"github.com/lherron/crmq/internal/view"
)

var watchCmd = &cobra.Command{
	Use:   "watch [users|apps]",
	Short: "Re-render a page whenever it is refreshed",
	Long: `Loads one page and polls the primary API every poll interval,
printing the page again after each refresh. Stops on Ctrl-C.

Examples:
  crmq watch --mine
  crmq watch apps --interval 30s -o ndjson`,
	Args: cobra.MaximumNArgs(1),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runWatch),
}

var (
	watchFilters  filterFlags
	watchPage     int
	watchSize     int
	watchInterval time.Duration
)

func init() {
	rootCmd.AddCommand(watchCmd)
	watchFilters.register(watchCmd)
	watchCmd.Flags().IntVar(&watchPage, "page", 1, "Page number")
	watchCmd.Flags().IntVar(&watchSize, "size", 0, "Page size (default from config)")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "Poll interval (default from config)")
}

func runWatch(app *appctx.App, cmd *cobra.Command, args []string) error {
	dataset, err := parseDataset(args)
	if err != nil {
		return err
	}
	filters, err := watchFilters.build(app.Actor)
	if err != nil {
		return err
	}
	r, err := newRenderer(app, cmd)
	if err != nil {
		return err
	}
	size := watchSize
	if size == 0 {
		size = app.Config.PageSize
	}
	interval := watchInterval
	if interval == 0 {
		interval = app.Config.PollInterval
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v, err := view.New(view.Config{
		Dataset:      dataset,
		Filters:      filters,
		Page:         watchPage,
		PageSize:     size,
		Actor:        app.Actor,
		PollInterval: interval,
	}, app.Pipeline(), app.Store,
		view.WithLogger(app.Log),
		view.WithMetrics(app.Metrics),
		view.WithNotifier(notify.NewWriter(cmd.ErrOrStderr())),
		view.WithOnRefresh(func(records []domain.MergedRecord, total int) {
			if err := renderPage(r, cmd, dataset, records, total); err != nil {
				app.Log.Warn("render failed", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return err
	}
	defer v.Close()

	if err := v.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func renderPage(r *render.Renderer, cmd *cobra.Command, dataset domain.Dataset, records []domain.MergedRecord, total int) error {
	if r.Format() == render.FormatTable {
		t := domain.TallyOf(records)
		fmt.Fprintf(cmd.OutOrStdout(), "\n%s  %d records, shown %d: addressed %d, unaddressed %d\n",
			time.Now().Format(time.TimeOnly), total, len(records), t.Addressed, t.Unaddressed)
	}
	headers, rows := render.RecordTable(dataset, records)
	return r.Render(records, headers, rows)
}
