package cli

import (
	"github.com/spf13/cobra"
)

var rootAdmCmd = &cobra.Command{
	Use:   "crmqadm",
	Short: "Administrative CLI for the crmq overlay database",
	Long: `crmqadm is the administrative companion to crmq. It handles overlay
database migrations and configuration introspection.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ExecuteAdmin runs the admin root command
func ExecuteAdmin() error {
	return rootAdmCmd.Execute()
}

func init() {
	rootAdmCmd.PersistentFlags().String("db", "", "Overlay database DSN (overrides CRMQ_OVERLAY_DSN)")
}
