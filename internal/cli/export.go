package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/crmq/internal/cli/appctx"
	"github.com/lherron/crmq/internal/config"
	"github.com/lherron/crmq/internal/domain"
	"github.com/lherron/crmq/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export [users|apps]",
	Short: "Export every matching record to CSV or XLSX",
	Long: `Fetches every record matching the filters and writes a spreadsheet.
The subset narrows by whether a call disposition is recorded. --mine
exports only your assignments with the My Activity columns.

The file goes to --out (a directory, or - for stdout) or, with --s3, to the
configured bucket.`,
	Args: cobra.MaximumNArgs(1),
	RunE: appctx.WithApp(appctx.PrimaryOnly(), runExport),
}

var (
	exportFilters filterFlags
	exportSubset  string
	exportFormat  string
	exportOut     string
	exportS3      bool
)

func init() {
	rootCmd.AddCommand(exportCmd)
	exportFilters.register(exportCmd)
	exportCmd.Flags().StringVar(&exportSubset, "subset", "all", "all, addressed or unaddressed")
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "csv or xlsx")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Output directory, or - for stdout (default from config)")
	exportCmd.Flags().BoolVar(&exportS3, "s3", false, "Upload to the configured S3 bucket")
}

func runExport(app *appctx.App, cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	dataset, err := parseDataset(args)
	if err != nil {
		return err
	}
	format, err := export.ParseFormat(exportFormat)
	if err != nil {
		return err
	}
	filters, err := exportFilters.build(app.Actor)
	if err != nil {
		return err
	}

	sink, err := exportSink(ctx, app.Config, cmd, exportOut, exportS3)
	if err != nil {
		return err
	}
	exp := export.New(app.Users(), app.Applications(), sink, app.Log, app.Metrics)
	res, err := exp.Export(ctx, export.Request{
		Dataset: dataset,
		Filters: filters,
		Subset:  domain.Subset(exportSubset),
		Format:  format,
		Mine:    exportFilters.mine,
		Actor:   app.Actor,
	})
	if err != nil {
		return err
	}

	if res.Location == "-" {
		fmt.Fprintf(cmd.ErrOrStderr(), "exported %d rows\n", res.Rows)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "exported %d rows to %s\n", res.Rows, res.Location)
	return nil
}

// exportSink picks where export files go.
func exportSink(ctx context.Context, cfg *config.Config, cmd *cobra.Command, out string, toS3 bool) (export.Sink, error) {
	if toS3 {
		return export.NewS3Sink(ctx, s3Config(cfg))
	}
	switch out {
	case "-":
		return export.WriterSink{W: cmd.OutOrStdout()}, nil
	case "":
		return export.DirSink{Dir: cfg.ExportDir}, nil
	default:
		return export.DirSink{Dir: out}, nil
	}
}

func s3Config(cfg *config.Config) export.S3Config {
	return export.S3Config{
		Bucket:   cfg.ExportS3Bucket,
		Region:   cfg.ExportS3Region,
		Endpoint: cfg.ExportS3Endpoint,
		Prefix:   cfg.ExportS3Prefix,
	}
}
