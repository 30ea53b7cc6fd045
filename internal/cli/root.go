package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "crmq",
	Short: "Recruiter CRM over the primary API and a local overlay",
	Long: `crmq lists candidates and applications from the primary API, merges
the recruiter-entered overrides kept in the local overlay database, and
records assignments, call outcomes and profile edits.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Overlay database DSN (overrides CRMQ_OVERLAY_DSN)")
	rootCmd.PersistentFlags().String("api", "", "Primary API base URL (overrides CRMQ_API_URL)")
	rootCmd.PersistentFlags().String("as", "", "Act as this recruiter email (overrides CRMQ_ACTOR_EMAIL)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output format: table, json, ndjson, yaml, tsv")
}
