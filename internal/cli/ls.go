package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/crmq/internal/cli/appctx"
	"github.com/lherron/crmq/internal/cursor"
	"github.com/lherron/crmq/internal/domain"
	"github.com/lherron/crmq/internal/render"
	"github.com/lherron/crmq/internal/view"
)

var lsCmd = &cobra.Command{
	Use:     "ls [users|apps]",
	Aliases: []string{"list"},
	Short:   "List one page of merged records",
	Long: `Lists one page of user-level or application-level records with local
overrides applied. Server-side filters go to the primary API; the
missing-details and date filters are applied to the page afterwards.

Examples:
  crmq ls --country UAE --assignee Unassigned
  crmq ls apps --mine --disposition CONNECTED_INTERESTED
  crmq ls --cursor <token>          # next page of a previous listing`,
	Args: cobra.MaximumNArgs(1),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runLs),
}

var (
	lsFilters filterFlags
	lsPage    int
	lsSize    int
	lsCursor  string
)

func init() {
	rootCmd.AddCommand(lsCmd)

	lsFilters.register(lsCmd)
	lsCmd.Flags().IntVar(&lsPage, "page", 1, "Page number")
	lsCmd.Flags().IntVar(&lsSize, "size", 0, "Page size (default from config)")
	lsCmd.Flags().StringVar(&lsCursor, "cursor", "", "Pagination cursor from previous page")
}

// listing is the structured form of one page.
type listing struct {
	Dataset     domain.Dataset        `json:"dataset"`
	Page        int                   `json:"page"`
	Size        int                   `json:"size"`
	Total       int                   `json:"total"`
	Addressed   int                   `json:"addressed"`
	Unaddressed int                   `json:"unaddressed"`
	Records     []domain.MergedRecord `json:"records"`
	NextCursor  string                `json:"next_cursor,omitempty"`
}

func runLs(app *appctx.App, cmd *cobra.Command, args []string) error {
	dataset, err := parseDataset(args)
	if err != nil {
		return err
	}
	filters, err := lsFilters.build(app.Actor)
	if err != nil {
		return err
	}

	page, size := lsPage, lsSize
	if size == 0 {
		size = app.Config.PageSize
	}
	if lsCursor != "" {
		c, err := cursor.Decode(lsCursor)
		if err != nil {
			return err
		}
		if !c.Matches(dataset, filters, "") {
			return fmt.Errorf("cursor was issued for a different query")
		}
		page, size = c.Page, c.Size
	}

	out, err := loadListing(commandContext(cmd), app, app.Actor, dataset, filters, page, size)
	if err != nil {
		return err
	}

	r, err := newRenderer(app, cmd)
	if err != nil {
		return err
	}
	switch r.Format() {
	case render.FormatJSON, render.FormatYAML:
		return r.Render(out, nil, nil)
	}
	headers, rows := render.RecordTable(dataset, out.Records)
	if err := r.Render(out.Records, headers, rows); err != nil {
		return err
	}
	if r.Format() == render.FormatTable {
		fmt.Fprintf(cmd.ErrOrStderr(), "page %d, %d records", page, out.Total)
		if out.NextCursor != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "; next: --cursor %s", out.NextCursor)
		}
		fmt.Fprintln(cmd.ErrOrStderr())
		fmt.Fprintf(cmd.ErrOrStderr(), "shown %d: addressed %d, unaddressed %d\n",
			len(out.Records), out.Addressed, out.Unaddressed)
	}
	return nil
}

// loadListing loads one merged page and the cursor of the next one.
func loadListing(ctx context.Context, app *appctx.App, actor string, dataset domain.Dataset, filters domain.Filters, page, size int) (listing, error) {
	v, err := view.New(view.Config{
		Dataset:  dataset,
		Filters:  filters,
		Page:     page,
		PageSize: size,
		Actor:    actor,
	}, app.Pipeline(), app.Store, view.WithLogger(app.Log), view.WithMetrics(app.Metrics))
	if err != nil {
		return listing{}, err
	}
	defer v.Close()

	if err := v.Refresh(ctx); err != nil {
		return listing{}, err
	}
	out := listing{
		Dataset: dataset,
		Page:    page,
		Size:    size,
		Total:   v.Total(),
		Records: v.Records(),
	}
	tally := domain.TallyOf(out.Records)
	out.Addressed, out.Unaddressed = tally.Addressed, tally.Unaddressed
	out.NextCursor, err = cursor.NextToken(dataset, filters, "", page, size, out.Total)
	return out, err
}
