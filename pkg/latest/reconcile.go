package latest

import (
	"context"

	"github.com/oneconcern/gibsync/pkg/ibgib"
	"github.com/oneconcern/gibsync/pkg/space/status"
)

type verdict int

const (
	keepExisting verdict = iota
	incomingNewer
	undecided
)

// fetchFunc retrieves a node, failing with status.ErrNotExists when it is missing
type fetchFunc func(ctx context.Context, addr string) (*ibgib.Node, error)

// compare decides whether the incoming node is more recent than the existing one, in the same timeline.
//
// Version counters decide when both nodes carry one. Otherwise relations
// are inspected, then both chains of predecessors are walked.
func compare(ctx context.Context, fetch fetchFunc, incoming, existing *ibgib.Node, tjpAddr string) (verdict, error) {
	if in, ok := ibgib.Counter(incoming); ok {
		if ex, ok := ibgib.Counter(existing); ok {
			switch {
			case in > ex:
				return incomingNewer, nil
			case in < ex:
				return keepExisting, nil
			default:
				return undecided, nil
			}
		}
	}

	inAddr, exAddr := incoming.Addr(), existing.Addr()
	inPast, exPast := ibgib.Past(incoming), ibgib.Past(existing)
	switch {
	case len(inPast) > 0 && len(exPast) == 0:
		return incomingNewer, nil
	case len(exPast) > 0 && len(inPast) == 0:
		return keepExisting, nil
	case ibgib.InPast(incoming, exAddr):
		return incomingNewer, nil
	case ibgib.InPast(existing, inAddr):
		return keepExisting, nil
	case inAddr == exAddr:
		return keepExisting, nil
	case exAddr == tjpAddr && len(ibgib.TjpAddrs(existing)) == 1:
		// the origin precedes every other node of its timeline
		return incomingNewer, nil
	case inAddr == tjpAddr && len(ibgib.TjpAddrs(incoming)) == 1:
		return keepExisting, nil
	}

	inDepth, met, err := depth(ctx, fetch, incoming, exAddr, -1)
	if err != nil {
		return keepExisting, err
	}
	if met {
		return incomingNewer, nil
	}
	exDepth, met, err := depth(ctx, fetch, existing, inAddr, inDepth)
	if err != nil {
		return keepExisting, err
	}
	switch {
	case met || exDepth > inDepth:
		return keepExisting, nil
	case inDepth > exDepth:
		return incomingNewer, nil
	default:
		return undecided, nil
	}
}

// depth counts the predecessors of a node, hopping to the earliest predecessor of each node.
//
// The walk stops as soon as other is met, or when the count exceeds limit, unless limit is negative.
func depth(ctx context.Context, fetch fetchFunc, n *ibgib.Node, other string, limit int) (int, bool, error) {
	visited := map[string]bool{n.Addr(): true}
	count := 0
	for cur := n; ; {
		if err := ctx.Err(); err != nil {
			return count, false, err
		}
		past := ibgib.Past(cur)
		if ibgib.InPast(cur, other) {
			return count, true, nil
		}
		if len(past) == 0 {
			return count, false, nil
		}
		count += len(past)
		if limit >= 0 && count > limit {
			return count, false, nil
		}
		next := past[0]
		if visited[next] {
			return count, false, status.ErrCycle.Wrapf("%s reached twice from %s", next, n.Addr())
		}
		visited[next] = true
		prev, err := fetch(ctx, next)
		if err != nil {
			return count, false, err
		}
		cur = prev
	}
}
