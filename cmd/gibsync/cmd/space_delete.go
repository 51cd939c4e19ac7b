package cmd

import (
	"context"

	"github.com/oneconcern/gibsync/pkg/space"
	"github.com/spf13/cobra"
)

var spaceDeleteCmd = &cobra.Command{
	Use:   "delete [addr]...",
	Short: "Delete nodes from the space",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		stack := openStack(ctx)
		defer closeStack(stack)

		res, err := space.Delete(ctx, stack.Space, clk, spaceOptions(args))
		if err != nil {
			wrapFatalln("delete nodes", err)
			return
		}
		printResult(res)
	},
}

func init() {
	addMetaFlag(spaceDeleteCmd)
	addDnaFlag(spaceDeleteCmd)

	spaceCmd.AddCommand(spaceDeleteCmd)
}
