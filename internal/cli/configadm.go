package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lherron/crmq/internal/config"
)

var configAdmCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration introspection",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long: `Prints the configuration after defaults, the config file, .env.local and
the environment have been applied. The overlay DSN password is redacted.
The output is a valid config file.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := config.Path()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), p)
		return nil
	},
}

func init() {
	rootAdmCmd.AddCommand(configAdmCmd)
	configAdmCmd.AddCommand(configShowCmd)
	configAdmCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return exitError(1, fmt.Errorf("failed to load config: %w", err))
	}
	if dsn := flagValue(cmd, "db"); dsn != "" {
		cfg.OverlayDSN = dsn
	}
	cfg.OverlayDSN = redactDSN(cfg.OverlayDSN)

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(cfg)
}
