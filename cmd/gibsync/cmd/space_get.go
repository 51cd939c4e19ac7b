package cmd

import (
	"context"
	"io/ioutil"

	"github.com/docker/go-units"
	"github.com/oneconcern/gibsync/pkg/space"
	"github.com/spf13/cobra"
)

var spaceGetCmd = &cobra.Command{
	Use:   "get [addr]...",
	Short: "Get nodes from the space",
	Long: `Get nodes by address, printed as JSON documents.

With --latest, addresses of timeline origins resolve to the latest known version.
With --bin-hash, a binary payload is retrieved and written to --output.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		stack := openStack(ctx)
		defer closeStack(stack)

		opts := spaceOptions(args)
		if gibsyncFlags.space.binHash != "" {
			getBinary(ctx, stack.Space, opts)
			return
		}

		res, err := space.Get(ctx, stack.Space, clk, opts)
		if err != nil {
			wrapFatalln("get nodes", err)
			return
		}
		for _, n := range res.Nodes {
			printNode(n)
		}
		printResult(res)
	},
}

func getBinary(ctx context.Context, s space.Space, opts space.Options) {
	opts.Addrs = nil
	opts.BinHash = gibsyncFlags.space.binHash
	opts.BinExt = gibsyncFlags.space.binExt
	res, err := space.Get(ctx, s, clk, opts)
	if err != nil {
		wrapFatalln("get binary", err)
		return
	}
	if res.Data.Success && gibsyncFlags.space.output != "" {
		if err = ioutil.WriteFile(gibsyncFlags.space.output, res.BinData, 0600); err != nil {
			wrapFatalln("write binary", err)
			return
		}
		infoLogger.Printf("%s written to %s", units.HumanSize(float64(len(res.BinData))), gibsyncFlags.space.output)
	}
	printResult(res)
}

func init() {
	addMetaFlag(spaceGetCmd)
	addDnaFlag(spaceGetCmd)
	addLatestFlag(spaceGetCmd)
	addBinHashFlag(spaceGetCmd)
	addBinExtFlag(spaceGetCmd)
	addOutputFlag(spaceGetCmd)

	spaceCmd.AddCommand(spaceGetCmd)
}
