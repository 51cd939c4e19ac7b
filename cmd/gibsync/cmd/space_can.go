package cmd

import (
	"context"

	"github.com/oneconcern/gibsync/pkg/ibgib"
	"github.com/oneconcern/gibsync/pkg/space"
	"github.com/spf13/cobra"
)

var spaceCanCmd = &cobra.Command{
	Use:   "can",
	Short: "Tell if the space can execute a command",
}

var spaceCanGetCmd = &cobra.Command{
	Use:   "get [addr]...",
	Short: "Tell if all nodes can be retrieved",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		opts := spaceOptions(args)
		opts.Cmd = space.CmdGet
		can(opts, nil)
	},
}

var spaceCanPutCmd = &cobra.Command{
	Use:   "put [node.json]...",
	Short: "Tell if some nodes would be stored",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		nodes, err := readNodes(args)
		if err != nil {
			wrapFatalln("read nodes", err)
			return
		}
		opts := spaceOptions(nil)
		opts.Cmd = space.CmdPut
		can(opts, nodes)
	},
}

var spaceCanDeleteCmd = &cobra.Command{
	Use:   "delete [addr]...",
	Short: "Tell if all nodes can be deleted",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		opts := spaceOptions(args)
		opts.Cmd = space.CmdDelete
		can(opts, nil)
	},
}

func can(opts space.Options, nodes []*ibgib.Node) {
	ctx := context.Background()
	stack := openStack(ctx)
	defer closeStack(stack)

	opts.Modifiers = append([]space.Modifier{space.ModCan}, opts.Modifiers...)
	res, err := space.Call(ctx, stack.Space, clk, opts, nodes, nil)
	if err != nil {
		wrapFatalln("can "+string(opts.Cmd), err)
		return
	}
	if res.Data.Can {
		infoLogger.Println(success("can " + string(opts.Cmd)))
	} else {
		infoLogger.Println(warning("cannot " + string(opts.Cmd)))
	}
	printResult(res)
}

func init() {
	for _, cmd := range []*cobra.Command{spaceCanGetCmd, spaceCanPutCmd, spaceCanDeleteCmd} {
		addMetaFlag(cmd)
		addDnaFlag(cmd)
		spaceCanCmd.AddCommand(cmd)
	}
	addForceFlag(spaceCanPutCmd)

	spaceCmd.AddCommand(spaceCanCmd)
}
