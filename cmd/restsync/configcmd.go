package main

import (
	"github.com/spf13/cobra"

	"github.com/restreviews/restsync/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults, the config file, RESTSYNC_*
environment variables and command-line flags have been applied.

Example usage:
  restsync config show
  restsync config show --format toml
  RESTSYNC_SYNC_REPLAY_POLICY=lossy restsync config show`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		return config.Encode(cmd.OutOrStdout(), cfg, format)
	},
}

func init() {
	configShowCmd.Flags().StringP("format", "f", "yaml", "output format: yaml, toml or json")

	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
