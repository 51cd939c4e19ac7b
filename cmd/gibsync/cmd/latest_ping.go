package cmd

import (
	"context"
	"syscall"

	"github.com/spf13/cobra"
)

var latestPingCmd = &cobra.Command{
	Use:   "ping [node.json]",
	Short: "Notify subscribers of the latest version of a node's timeline",
	Long: `Republishes the latest known version of the timeline of a node, without changing the registry.
Exits with ENOENT status when the timeline is unknown.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		stack := openStack(ctx)
		defer closeStack(stack)

		nodes, err := readNodes(args)
		if err != nil {
			wrapFatalln("read node", err)
			return
		}
		addr, ok, err := stack.Registry.Ping(ctx, nodes[0], gibsyncFlags.latest.tjp)
		if err != nil {
			wrapFatalln("ping", err)
			return
		}
		if !ok {
			wrapFatalWithCodef(int(syscall.ENOENT), "didn't find the timeline of %q", nodes[0].Addr())
			return
		}
		infoLogger.Println(addr)
	},
}

func init() {
	addTjpFlag(latestPingCmd)

	latestCmd.AddCommand(latestPingCmd)
}
