package cmd

import (
	"context"
	"io/ioutil"

	"github.com/docker/go-units"
	"github.com/oneconcern/gibsync/pkg/ibgib"
	"github.com/oneconcern/gibsync/pkg/space"
	"github.com/spf13/cobra"
)

var spacePutCmd = &cobra.Command{
	Use:   "put [node.json]...",
	Short: "Put nodes into the space",
	Long: `Put nodes read from JSON files into the space.

Nodes already held are skipped unless forced. With --bin, the file is stored as
a binary payload addressed by its hash and extension.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		stack := openStack(ctx)
		defer closeStack(stack)

		if gibsyncFlags.space.binFile != "" {
			putBinary(ctx, stack.Space)
			return
		}

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
		printResult(res)
	},
}

func putBinary(ctx context.Context, s space.Space) {
	data, err := ioutil.ReadFile(gibsyncFlags.space.binFile)
	if err != nil {
		wrapFatalln("read binary", err)
		return
	}
	hasher, err := settings.Space.BinHasher()
	if err != nil {
		wrapFatalln("binary hash", err)
		return
	}
	opts := spaceOptions(nil)
	opts.Cmd = space.CmdPut
	opts.BinHash = ibgib.HexDigestBytes(hasher, data)
	opts.BinExt = gibsyncFlags.space.binExt

	res, err := space.Call(ctx, s, clk, opts, nil, data)
	if err != nil {
		wrapFatalln("put binary", err)
		return
	}
	infoLogger.Printf("%s (%s)", ibgib.BinAddr(opts.BinHash, opts.BinExt), units.HumanSize(float64(len(data))))
	printResult(res)
}

func init() {
	addForceFlag(spacePutCmd)
	addMetaFlag(spacePutCmd)
	addDnaFlag(spacePutCmd)
	addBinFileFlag(spacePutCmd)
	addBinExtFlag(spacePutCmd)

	spaceCmd.AddCommand(spacePutCmd)
}
