package cmd

import (
	"github.com/spf13/cobra"
)

// configCmd represents the config related commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Commands to manage a config",
	Long: `Commands to manage gibsync CLI config.

Configuration for gibsync describes the space the commands operate on,
analogous to "git config ...". `,
}

func init() {
	rootCmd.AddCommand(configCmd)
}
