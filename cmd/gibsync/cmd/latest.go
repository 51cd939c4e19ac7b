// Copyright © 2018 One Concern

package cmd

import (
	"github.com/spf13/cobra"
)

var latestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Commands to track the latest version of timelines",
	Long: `Commands to register nodes as the latest version of their timeline,
and to look up the latest version of a timeline by the address of its origin.

The registry is kept in the meta area of the configured space.`,
}

func init() {
	rootCmd.AddCommand(latestCmd)
}
