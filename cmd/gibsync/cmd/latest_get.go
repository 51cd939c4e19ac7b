package cmd

import (
	"context"
	"syscall"

	"github.com/spf13/cobra"
)

var latestGetCmd = &cobra.Command{
	Use:   "get [tjpAddr]",
	Short: "Get the address of the latest version of a timeline",
	Long: `Performs a lookup of the latest version of a timeline, by the address of its origin.
Prints the latest address if the timeline is known,
exits with ENOENT status otherwise.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		stack := openStack(ctx)
		defer closeStack(stack)

		addr, ok, err := stack.Registry.LatestAddr(ctx, args[0])
		if err != nil {
			wrapFatalln("latest address", err)
			return
		}
		if !ok {
			wrapFatalWithCodef(int(syscall.ENOENT), "didn't find timeline %q", args[0])
			return
		}
		infoLogger.Println(addr)
	},
}

func init() {
	latestCmd.AddCommand(latestGetCmd)
}
