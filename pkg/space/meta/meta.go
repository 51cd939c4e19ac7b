// Copyright © 2018 One Concern

// Package meta provides a space composed of other spaces.
//
// Commands are fanned out concurrently to the units serving them. Their
// responses are merged into a single one, successful when enough units
// succeeded according to a policy.
package meta

import (
	"context"
	"sort"
	"strings"

	"github.com/oneconcern/gibsync/pkg/errors"
	"github.com/oneconcern/gibsync/pkg/ibgib"
	"github.com/oneconcern/gibsync/pkg/space"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	_ space.Backend      = &Backend{}
	_ space.LatestGetter = &Backend{}

	// ErrNoUnit is reported when no unit serves a command
	ErrNoUnit = errors.New("no unit serves this command")
)

// Unit is a space taking part in a composite
type Unit struct {
	Name  string
	Space space.Space

	// Ops restricts the operations delegated to this unit. All operations are delegated when empty.
	Ops []string
}

func (u Unit) serves(op string) bool {
	if len(u.Ops) == 0 {
		return true
	}
	for _, o := range u.Ops {
		if o == op {
			return true
		}
	}
	return false
}

// Option for the composite
type Option func(*Backend)

// Logger for the composite
func Logger(l *zap.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// Backend fans commands out to units
type Backend struct {
	policy Policy
	units  []Unit
	logger *zap.Logger
}

// NewBackend composing some units under a policy
func NewBackend(policy Policy, units []Unit, opts ...Option) *Backend {
	b := &Backend{policy: policy, units: append([]Unit(nil), units...), logger: zap.NewNop()}
	for _, apply := range opts {
		apply(b)
	}
	for i := range b.units {
		if b.units[i].Name == "" {
			b.units[i].Name = b.units[i].Space.String()
		}
	}
	return b
}

// New composite space
func New(policy Policy, units []Unit, opts ...space.Option) space.Space {
	return space.New(NewBackend(policy, units), opts...)
}

func (b *Backend) String() string {
	names := make([]string, 0, len(b.units))
	for _, u := range b.units {
		names = append(names, u.Name)
	}
	return "meta:" + b.policy.String() + "(" + strings.Join(names, ",") + ")"
}

// Close every unit
func (b *Backend) Close() error {
	var errs error
	for _, u := range b.units {
		errs = errors.Append(errs, u.Space.Close())
	}
	return errs
}

type outcome struct {
	unit Unit
	res  *space.Result
	err  error
}

func (o outcome) succeeded() bool {
	return o.err == nil && o.res != nil && o.res.Data.Success
}

// fanout witnesses the request on every unit serving the operation
func (b *Backend) fanout(ctx context.Context, op string, arg *space.Arg) []outcome {
	var outcomes []outcome
	for _, u := range b.units {
		if u.serves(op) {
			outcomes = append(outcomes, outcome{unit: u})
		}
	}
	var g errgroup.Group
	for i := range outcomes {
		o := &outcomes[i]
		g.Go(func() error {
			o.res, o.err = o.unit.Space.Witness(ctx, arg)
			if o.err == nil && o.res == nil {
				o.err = space.ErrSwallowed
			}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (b *Backend) run(ctx context.Context, op string, arg *space.Arg) (*space.Result, error) {
	outcomes := b.fanout(ctx, op, arg)
	if len(outcomes) == 0 {
		return nil, ErrNoUnit.Wrapf("%s on %s", op, b)
	}
	res := merge(op, arg, outcomes)

	succeeded, can := 0, 0
	for _, o := range outcomes {
		if o.succeeded() {
			succeeded++
			if o.res.Data.Can {
				can++
			}
		}
	}
	res.Data.Success = b.policy.Satisfied(succeeded, len(outcomes))
	switch op {
	case space.OpCanGet, space.OpCanPut, space.OpCanDelete:
		res.Data.Can = b.policy.Satisfied(can, len(outcomes))
	}
	b.logger.Debug("fanned out",
		zap.String("op", op), zap.Int("units", len(outcomes)), zap.Int("succeeded", succeeded), zap.Bool("success", res.Data.Success))
	return res, nil
}

type set map[string]bool

func (s set) add(addrs ...string) {
	for _, a := range addrs {
		s[a] = true
	}
}

// ordered lists the members of the set, in the order of reference first, then sorted
func (s set) ordered(reference []string, except ...set) []string {
	out := make([]string, 0, len(s))
	done := make(set, len(s))
	keep := func(a string) bool {
		if !s[a] || done[a] {
			return false
		}
		for _, e := range except {
			if e[a] {
				return false
			}
		}
		done[a] = true
		return true
	}
	for _, a := range reference {
		if keep(a) {
			out = append(out, a)
		}
	}
	var rest []string
	for a := range s {
		if keep(a) {
			rest = append(rest, a)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// merge combines the unit responses.
//
// An address is found when any unit found it. Otherwise it is errored when
// any unit failed on it, and not found only when every unit agrees.
func merge(op string, arg *space.Arg, outcomes []outcome) *space.Result {
	res := space.Succeeded()
	var (
		nodes    = make(map[string]*ibgib.Node)
		order    []string
		addrs    = make(set)
		notFound = make(set)
		already  = make(set)
		errored  = make(set)
	)
	for _, o := range outcomes {
		if o.err != nil {
			for _, msg := range errors.Messages(o.err) {
				res.Data.Errors = append(res.Data.Errors, o.unit.Name+": "+msg)
			}
			continue
		}
		d := o.res.Data
		for _, msg := range d.Errors {
			res.Data.Errors = append(res.Data.Errors, o.unit.Name+": "+msg)
		}
		for _, msg := range d.Warnings {
			res.Data.Warnings = append(res.Data.Warnings, o.unit.Name+": "+msg)
		}
		for _, n := range o.res.Nodes {
			addr := n.Addr()
			if _, ok := nodes[addr]; !ok {
				nodes[addr] = n
				order = append(order, addr)
			}
		}
		if len(res.BinData) == 0 && len(o.res.BinData) > 0 {
			res.BinData = o.res.BinData
		}
		addrs.add(d.Addrs...)
		notFound.add(d.AddrsNotFound...)
		already.add(d.AddrsAlreadyHave...)
		errored.add(d.AddrsErrored...)
	}
	for _, addr := range order {
		res.Nodes = append(res.Nodes, nodes[addr])
	}
	found := make(set, len(nodes))
	found.add(order...)

	requested := arg.Options.Addrs
	if op == space.OpPut || op == space.OpCanPut {
		requested = append(arg.PayloadAddrs(), requested...)
	}
	res.Data.Addrs = addrs.ordered(requested)
	switch op {
	case space.OpGet, space.OpCanGet, space.OpGetLatest:
		addrs.add(found.ordered(nil)...)
		res.Data.AddrsErrored = errored.ordered(requested, found, addrs)
		res.Data.AddrsNotFound = notFound.ordered(requested, found, addrs, errored)
	case space.OpDelete, space.OpCanDelete:
		res.Data.AddrsErrored = errored.ordered(requested)
		res.Data.AddrsNotFound = notFound.ordered(requested, addrs, errored)
	case space.OpPut, space.OpCanPut:
		res.Data.AddrsErrored = errored.ordered(requested)
		res.Data.AddrsAlreadyHave = already.ordered(requested, addrs)
	default:
		res.Data.AddrsErrored = errored.ordered(requested)
	}
	return res
}

// Get nodes from the units holding them
func (b *Backend) Get(ctx context.Context, arg *space.Arg) (*space.Result, error) {
	return b.run(ctx, space.OpGet, arg)
}

// Put nodes in every unit
func (b *Backend) Put(ctx context.Context, arg *space.Arg) (*space.Result, error) {
	return b.run(ctx, space.OpPut, arg)
}

// Delete nodes from every unit
func (b *Backend) Delete(ctx context.Context, arg *space.Arg) (*space.Result, error) {
	return b.run(ctx, space.OpDelete, arg)
}

// GetAddrs lists the union of addresses held by units
func (b *Backend) GetAddrs(ctx context.Context, arg *space.Arg) (*space.Result, error) {
	return b.run(ctx, space.OpGetAddrs, arg)
}

// GetLatest resolves timelines in every unit
func (b *Backend) GetLatest(ctx context.Context, arg *space.Arg) (*space.Result, error) {
	return b.run(ctx, space.OpGetLatest, arg)
}

// CanGet tells if enough units hold every address
func (b *Backend) CanGet(ctx context.Context, arg *space.Arg) (*space.Result, error) {
	return b.run(ctx, space.OpCanGet, arg)
}

// CanPut tells if enough units would write something
func (b *Backend) CanPut(ctx context.Context, arg *space.Arg) (*space.Result, error) {
	return b.run(ctx, space.OpCanPut, arg)
}

// CanDelete tells if enough units hold every address
func (b *Backend) CanDelete(ctx context.Context, arg *space.Arg) (*space.Result, error) {
	return b.run(ctx, space.OpCanDelete, arg)
}
