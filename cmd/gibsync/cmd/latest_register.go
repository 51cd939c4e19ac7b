package cmd

import (
	"context"

	"github.com/oneconcern/gibsync/pkg/space"
	"github.com/spf13/cobra"
)

var latestRegisterCmd = &cobra.Command{
	Use:   "register [node.json]...",
	Short: "Register nodes as candidates for the latest version of their timeline",
	Long: `Store nodes read from JSON files, then register each of them with the registry.

A node replaces the latest known version of its timeline only when it is newer.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		stack := openStack(ctx)
		defer closeStack(stack)

		nodes, err := readNodes(args)
		if err != nil {
			wrapFatalln("read nodes", err)
			return
		}
		res, err := space.Put(ctx, stack.Space, clk, spaceOptions(nil), nodes...)
		if err != nil {
			wrapFatalln("put nodes", err)
			return
		}
		if err = space.ResultError(res); err != nil {
			printResult(res)
			return
		}

		for _, n := range nodes {
			outcome, err := stack.Registry.Register(ctx, n)
			if err != nil {
				wrapFatalln("register "+n.Addr(), err)
				return
			}
			label := faint(outcome.String())
			if outcome.Changed() {
				label = success(outcome.String())
			}
			infoLogger.Printf("%s %s", label, n.Addr())
		}
	},
}

func init() {
	addForceFlag(latestRegisterCmd)

	latestCmd.AddCommand(latestRegisterCmd)
}
