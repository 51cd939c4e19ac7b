package cmd

import (
	"context"

	"github.com/oneconcern/gibsync/pkg/space"
	"github.com/spf13/cobra"
)

var spaceAddrsCmd = &cobra.Command{
	Use:   "addrs",
	Short: "List the addresses of nodes held in the space",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		stack := openStack(ctx)
		defer closeStack(stack)

		res, err := space.ListAddrs(ctx, stack.Space, clk, spaceOptions(nil))
		if err != nil {
			wrapFatalln("list addresses", err)
			return
		}
		printResult(res)
	},
}

func init() {
	addMetaFlag(spaceAddrsCmd)
	addDnaFlag(spaceAddrsCmd)

	spaceCmd.AddCommand(spaceAddrsCmd)
}
