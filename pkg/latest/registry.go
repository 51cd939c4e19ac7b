// Package latest keeps track of the most recent node of every timeline.
//
// The mapping from timeline origins (tjp addresses) to latest addresses is
// held in an ephemeral index node, stored in the meta area of a space.
// Every update writes a whole new incarnation of the index, without past,
// then deletes the previous one. Changes are published on a bus, with the
// tjp address as topic.
package latest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oneconcern/gibsync/pkg/bus"
	"github.com/oneconcern/gibsync/pkg/clock"
	"github.com/oneconcern/gibsync/pkg/errors"
	"github.com/oneconcern/gibsync/pkg/ibgib"
	"github.com/oneconcern/gibsync/pkg/metrics"
	"github.com/oneconcern/gibsync/pkg/space"
	"github.com/oneconcern/gibsync/pkg/space/status"
	"go.uber.org/zap"
)

// IndexID is the id of index nodes
const IndexID = "latest"

var (
	_ space.LatestResolver = &Registry{}

	// ErrIndex is returned when the index can't be loaded or persisted
	ErrIndex = errors.New("latest index unavailable")
)

// Option for the registry
type Option func(*Registry)

// Clock stamps index incarnations
func Clock(clk clock.Clock) Option {
	return func(r *Registry) {
		if clk != nil {
			r.clock = clk
		}
	}
}

// Logger for the registry
func Logger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// Policy decides about mapped nodes that can't be fetched.
// Without a policy, such registrations fail with status.ErrUnresolvedLatest.
func Policy(p ReplacePolicy) Option {
	return func(r *Registry) {
		r.policy = p
	}
}

// Registry maps timelines to their latest node. Registrations are serialized.
type Registry struct {
	mu            sync.Mutex
	space         space.Space
	bus           *bus.Bus
	clock         clock.Clock
	logger        *zap.Logger
	policy        ReplacePolicy
	alwaysReplace bool
	index         *ibgib.Node
}

// New registry persisting its index in some space and publishing changes on a bus.
// A private bus is created when none is provided.
func New(s space.Space, b *bus.Bus, opts ...Option) *Registry {
	r := &Registry{
		space:  s,
		bus:    b,
		clock:  clock.System(),
		logger: zap.NewNop(),
	}
	for _, apply := range opts {
		apply(r)
	}
	if r.bus == nil {
		r.bus = bus.New(bus.Logger(r.logger))
	}
	return r
}

// Bus on which changes are published
func (r *Registry) Bus() *bus.Bus {
	return r.bus
}

// Subscribe to the changes of a timeline. The last change is replayed first.
func (r *Registry) Subscribe(tjpAddr string) *bus.Subscription {
	return r.bus.Subscribe(tjpAddr)
}

// Index returns a copy of the current index node, nil when nothing was registered
func (r *Registry) Index() *ibgib.Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index.Clone()
}

// Open loads the most recent index incarnation from the space and prunes stale ones
func (r *Registry) Open(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	listed, err := space.ListAddrs(ctx, r.space, r.clock, space.Options{IsMeta: true})
	if err == nil {
		err = space.ResultError(listed)
	}
	if err != nil {
		return ErrIndex.Wrap(err)
	}
	var candidates []string
	for _, addr := range listed.Data.Addrs {
		if id, _ := ibgib.ParseAddr(addr); id == IndexID {
			candidates = append(candidates, addr)
		}
	}
	r.index = nil
	if len(candidates) == 0 {
		r.logger.Debug("no latest index yet")
		return nil
	}

	got, err := space.Get(ctx, r.space, r.clock, space.Options{IsMeta: true, Addrs: candidates})
	if err == nil {
		err = space.ResultError(got)
	}
	if err != nil {
		return ErrIndex.Wrap(err)
	}
	incarnations := got.Nodes
	if len(incarnations) == 0 {
		return nil
	}
	sort.Slice(incarnations, func(i, j int) bool {
		return newerIndex(incarnations[i], incarnations[j])
	})
	r.index = incarnations[0]
	r.logger.Info("latest index loaded", zap.String("index", r.index.Addr()), zap.Int("timelines", len(r.index.Relations)))

	if stale := incarnations[1:]; len(stale) > 0 {
		addrs := make([]string, 0, len(stale))
		for _, n := range stale {
			addrs = append(addrs, n.Addr())
		}
		r.deleteIndex(ctx, addrs...)
	}
	return nil
}

func newerIndex(a, b *ibgib.Node) bool {
	na, _ := ibgib.Counter(a)
	nb, _ := ibgib.Counter(b)
	if na != nb {
		return na > nb
	}
	ta, _ := a.Data[ibgib.DataTimestamp].(string)
	tb, _ := b.Data[ibgib.DataTimestamp].(string)
	if ta != tb {
		return ta > tb
	}
	return a.Addr() > b.Addr()
}

// LatestAddr returns the latest address registered for a timeline
func (r *Registry) LatestAddr(_ context.Context, tjpAddr string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	addr, ok := r.mapped(tjpAddr)
	return addr, ok, nil
}

func (r *Registry) mapped(tjpAddr string) (string, bool) {
	if r.index == nil {
		return "", false
	}
	addrs := r.index.Relations[tjpAddr]
	if len(addrs) == 0 {
		return "", false
	}
	return addrs[0], true
}

// Register a node as the latest of its timeline, when it is more recent than the node mapped so far
func (r *Registry) Register(ctx context.Context, n *ibgib.Node) (Outcome, error) {
	if n == nil || n.IsPrimitive() {
		return OutcomeUnchanged, status.ErrInvalidNode.Wrapf("can't register %q", n.Addr())
	}
	if err := ibgib.Verify(n); err != nil {
		return OutcomeUnchanged, status.ErrInvalidNode.Wrap(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	outcome, err := r.register(ctx, n)
	if err != nil {
		return OutcomeUnchanged, err
	}
	metrics.Registration(outcome.String())
	return outcome, nil
}

func (r *Registry) register(ctx context.Context, n *ibgib.Node) (Outcome, error) {
	addr := n.Addr()
	tjpAddr, err := r.tjpOf(ctx, n)
	if err != nil {
		return OutcomeUnchanged, err
	}
	logger := r.logger.With(zap.String("tjp", tjpAddr), zap.String("addr", addr))

	mapped, ok := r.mapped(tjpAddr)
	if !ok {
		if err := r.update(ctx, tjpAddr, n); err != nil {
			return OutcomeUnchanged, err
		}
		logger.Debug("timeline registered")
		return OutcomeAdded, nil
	}
	if mapped == addr {
		return OutcomeUnchanged, nil
	}

	current, err := r.fetch(ctx, mapped)
	switch {
	case errors.Is(err, status.ErrNotExists):
		replace, err := r.decide(ctx, tjpAddr, mapped, n)
		if err != nil || !replace {
			return OutcomeUnchanged, err
		}
		logger.Info("mapped node missing, replaced by policy", zap.String("mapped", mapped))
	case err != nil:
		return OutcomeUnchanged, err
	default:
		v, err := compare(ctx, r.fetch, n, current, tjpAddr)
		if err != nil {
			return OutcomeUnchanged, err
		}
		switch v {
		case undecided:
			logger.Warn("divergent versions, keeping the mapped one", zap.String("mapped", mapped))
			return OutcomeConflict, nil
		case keepExisting:
			return OutcomeUnchanged, nil
		}
	}

	if err := r.update(ctx, tjpAddr, n); err != nil {
		return OutcomeUnchanged, err
	}
	logger.Debug("latest replaced", zap.String("previous", mapped))
	return OutcomeReplaced, nil
}

func (r *Registry) decide(ctx context.Context, tjpAddr, mapped string, n *ibgib.Node) (bool, error) {
	if r.alwaysReplace {
		return true, nil
	}
	if r.policy == nil {
		return false, status.ErrUnresolvedLatest.Wrapf("%s is mapped to %s, which can't be fetched", tjpAddr, mapped)
	}
	d, err := r.policy(ctx, tjpAddr, mapped, n)
	if err != nil {
		return false, status.ErrUnresolvedLatest.Wrap(err)
	}
	switch d {
	case AlwaysReplace:
		r.alwaysReplace = true
		return true, nil
	case Replace:
		return true, nil
	default:
		return false, nil
	}
}

// Ping republishes the latest node of a timeline, without changing anything.
// The timeline is discovered from the node when tjpAddr is empty.
func (r *Registry) Ping(ctx context.Context, n *ibgib.Node, tjpAddr string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tjpAddr == "" {
		if n == nil {
			return "", false, status.ErrInvalidNode.Wrapf("a node or a tjp address is required")
		}
		var err error
		if tjpAddr, err = r.tjpOf(ctx, n); err != nil {
			return "", false, err
		}
	}
	mapped, ok := r.mapped(tjpAddr)
	if !ok {
		return "", false, nil
	}
	latest, err := r.fetch(ctx, mapped)
	if err != nil && !errors.Is(err, status.ErrNotExists) {
		return "", false, err
	}
	r.publish(tjpAddr, mapped, latest)
	return mapped, true, nil
}

// tjpOf finds the origin of the node's timeline, following explicit tjp
// relations then the most recent predecessors up to the root of the chain.
// A node whose chain can't be walked is its own tjp.
func (r *Registry) tjpOf(ctx context.Context, n *ibgib.Node) (string, error) {
	visited := make(map[string]bool)
	for cur := n; ; {
		addr := cur.Addr()
		if visited[addr] {
			return "", status.ErrCycle.Wrapf("%s reached twice looking for the origin of %s", addr, n.Addr())
		}
		visited[addr] = true

		if cur.IsPrimitive() || ibgib.IsTjp(cur) {
			return addr, nil
		}
		if tjp, ok := ibgib.Tjp(cur); ok {
			return tjp, nil
		}
		past := ibgib.Past(cur)
		if len(past) == 0 {
			// root of the chain
			return addr, nil
		}
		prev, err := r.fetch(ctx, past[len(past)-1])
		if errors.Is(err, status.ErrNotExists) {
			r.logger.Warn("predecessor missing while looking for the timeline origin", zap.String("addr", n.Addr()), zap.Error(err))
			break
		}
		if err != nil {
			return "", err
		}
		cur = prev
	}
	return n.Addr(), nil
}

func (r *Registry) fetch(ctx context.Context, addr string) (*ibgib.Node, error) {
	res, err := space.Get(ctx, r.space, r.clock, space.Options{Addrs: []string{addr}})
	if err == nil {
		err = space.ResultError(res)
	}
	if err != nil {
		return nil, err
	}
	if n, ok := res.Index()[addr]; ok {
		return n, nil
	}
	return nil, status.ErrNotExists.Wrapf("%s", addr)
}

// update writes a new index incarnation mapping the timeline to the node, then deletes the previous incarnation
func (r *Registry) update(ctx context.Context, tjpAddr string, n *ibgib.Node) error {
	next, err := r.nextIndex(tjpAddr, n.Addr())
	if err != nil {
		return ErrIndex.Wrap(err)
	}
	res, err := space.Put(ctx, r.space, r.clock, space.Options{IsMeta: true, Force: true}, next)
	if err == nil {
		err = space.ResultError(res)
	}
	if err != nil {
		return ErrIndex.Wrap(err)
	}

	prev := r.index
	r.index = next
	if prev != nil && prev.Addr() != next.Addr() {
		r.deleteIndex(ctx, prev.Addr())
	}
	r.publish(tjpAddr, n.Addr(), n)
	return nil
}

func (r *Registry) nextIndex(tjpAddr, addr string) (*ibgib.Node, error) {
	rels := make(map[string][]string)
	var count int64
	if r.index != nil {
		for k, v := range r.index.Relations {
			if k == ibgib.RelPast {
				continue
			}
			rels[k] = append([]string(nil), v...)
		}
		count, _ = ibgib.Counter(r.index)
	}
	rels[tjpAddr] = []string{addr}
	return ibgib.Seal(&ibgib.Node{
		ID: IndexID,
		Data: map[string]interface{}{
			ibgib.DataCounter:   count + 1,
			ibgib.DataTimestamp: r.clock.Now().UTC().Format(time.RFC3339Nano),
		},
		Relations: rels,
	})
}

// deleteIndex removes stale incarnations. Failures leave them for the next Open to prune.
func (r *Registry) deleteIndex(ctx context.Context, addrs ...string) {
	res, err := space.Delete(ctx, r.space, r.clock, space.Options{IsMeta: true, Addrs: addrs})
	if err == nil {
		err = space.ResultError(res)
	}
	if err != nil {
		r.logger.Warn("stale latest index left behind", zap.Strings("index", addrs), zap.Error(err))
	}
}

func (r *Registry) publish(tjpAddr, addr string, n *ibgib.Node) {
	if err := r.bus.Publish(tjpAddr, Update{TjpAddr: tjpAddr, LatestAddr: addr, Latest: n}); err != nil {
		r.logger.Warn("change not published", zap.String("tjp", tjpAddr), zap.Error(err))
	}
}
