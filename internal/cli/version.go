package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Displays version, commit, and build date information.`,
	RunE:  runVersion,
}

var versionJSON bool

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Output as JSON")
}

func runVersion(cmd *cobra.Command, args []string) error {
	return printVersion(cmd, "crmq", rootCmd, versionJSON)
}

func printVersion(cmd *cobra.Command, name string, root *cobra.Command, asJSON bool) error {
	if asJSON {
		output := map[string]any{
			"version":                   Version,
			"commit":                    GitCommit,
			"build_date":                BuildDate,
			"machine_interface_version": 1,
			"binary":                    name,
			"supported_commands":        commandNames(root),
			"supported_formats": []string{
				"json", "ndjson", "yaml", "tsv", "table",
			},
			"datasets":      []string{"user-level", "application-level"},
			"export_format": []string{"csv", "xlsx"},
		}
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(output)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", name, Version)
	fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", GitCommit)
	fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", BuildDate)
	return nil
}

func commandNames(root *cobra.Command) []string {
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	return names
}
