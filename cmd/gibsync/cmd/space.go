// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"io/ioutil"

	"github.com/oneconcern/gibsync/pkg/clock"
	"github.com/oneconcern/gibsync/pkg/config"
	"github.com/oneconcern/gibsync/pkg/ibgib"
	"github.com/oneconcern/gibsync/pkg/space"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/spf13/cobra"
)

var spaceCmd = &cobra.Command{
	Use:   "space",
	Short: "Commands to manage nodes in a space",
	Long: `Commands to put, get and delete nodes held in the configured space.

Nodes are read from and written as JSON documents.`,
}

func init() {
	rootCmd.AddCommand(spaceCmd)
}

var clk = clock.System()

func openStack(ctx context.Context) *config.Stack {
	opts := []config.FactoryOption{config.Logger(logger), config.Clock(clk)}
	if settings.Tracing {
		opts = append(opts, config.Tracer(opentracing.GlobalTracer()))
	}
	stack, err := config.NewFactory(opts...).Stack(ctx, settings.Space)
	if err != nil {
		wrapFatalln("open space", err)
		return nil
	}
	return stack
}

func closeStack(stack *config.Stack) {
	if err := stack.Close(); err != nil {
		wrapFatalln("close space", err)
	}
}

// spaceOptions built from the command line flags
func spaceOptions(addrs []string) space.Options {
	opts := space.Options{
		Addrs:          addrs,
		Force:          gibsyncFlags.space.force,
		IsMeta:         gibsyncFlags.space.isMeta,
		IsDna:          gibsyncFlags.space.isDna,
		CatchAllErrors: settings.Space.CatchAllErrors,
	}
	if gibsyncFlags.space.latest {
		opts.Modifiers = append(opts.Modifiers, space.ModLatest)
	}
	return opts
}

func readNodes(files []string) ([]*ibgib.Node, error) {
	nodes := make([]*ibgib.Node, 0, len(files))
	for _, file := range files {
		buf, err := ioutil.ReadFile(file)
		if err != nil {
			return nil, err
		}
		n, err := ibgib.Decode(buf)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}
