package space

import (
	"context"
	"strings"

	"github.com/oneconcern/gibsync/pkg/clock"
	"github.com/oneconcern/gibsync/pkg/errors"
	"github.com/oneconcern/gibsync/pkg/ibgib"
)

var (
	// ErrSwallowed is returned by helpers when a space swallowed an error
	ErrSwallowed = errors.New("space swallowed an error")

	// ErrFailed is returned by helpers when a space reports an unsuccessful command
	ErrFailed = errors.New("space command failed")
)

// Call builds a request and witnesses it.
func Call(ctx context.Context, s Space, clk clock.Clock, opts Options, nodes []*ibgib.Node, binData []byte) (*Result, error) {
	arg, err := NewArg(clk, opts, nodes, binData)
	if err != nil {
		return nil, err
	}
	res, err := s.Witness(ctx, arg)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, ErrSwallowed.Wrapf("%s on %s", arg.Options.metadata(), s)
	}
	return res, nil
}

// Get nodes by address
func Get(ctx context.Context, s Space, clk clock.Clock, opts Options) (*Result, error) {
	opts.Cmd = CmdGet
	return Call(ctx, s, clk, opts, nil, nil)
}

// Put nodes
func Put(ctx context.Context, s Space, clk clock.Clock, opts Options, nodes ...*ibgib.Node) (*Result, error) {
	opts.Cmd = CmdPut
	return Call(ctx, s, clk, opts, nodes, nil)
}

// ListAddrs lists the addresses of the nodes held
func ListAddrs(ctx context.Context, s Space, clk clock.Clock, opts Options) (*Result, error) {
	opts.Cmd = CmdGet
	opts.Modifiers = append([]Modifier{ModAddrs}, opts.Modifiers...)
	return Call(ctx, s, clk, opts, nil, nil)
}

// Delete nodes by address
func Delete(ctx context.Context, s Space, clk clock.Clock, opts Options) (*Result, error) {
	opts.Cmd = CmdDelete
	return Call(ctx, s, clk, opts, nil, nil)
}

// ResultError returns an error when the result is not successful
func ResultError(res *Result) error {
	if res == nil {
		return ErrSwallowed
	}
	if res.Data.Success {
		return nil
	}
	return ErrFailed.Wrapf("%s", strings.Join(res.Data.Errors, "; "))
}

// Index returns the payload of a result keyed by address
func (r *Result) Index() map[string]*ibgib.Node {
	idx := make(map[string]*ibgib.Node, len(r.Nodes))
	for _, n := range r.Nodes {
		idx[n.Addr()] = n
	}
	return idx
}
