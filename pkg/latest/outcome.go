package latest

import (
	"context"

	"github.com/oneconcern/gibsync/pkg/ibgib"
)

// Outcome of a registration
type Outcome int

// Registration outcomes
const (
	// OutcomeUnchanged means the mapping already pointed to a node at least as recent
	OutcomeUnchanged Outcome = iota
	// OutcomeAdded means the timeline was not mapped yet
	OutcomeAdded
	// OutcomeReplaced means the node is newer than the one mapped so far
	OutcomeReplaced
	// OutcomeConflict means the node and the mapped one diverge with no way to order them. The mapping is kept.
	OutcomeConflict
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdded:
		return "added"
	case OutcomeReplaced:
		return "replaced"
	case OutcomeConflict:
		return "conflict"
	default:
		return "unchanged"
	}
}

// Changed tells if the mapping was updated
func (o Outcome) Changed() bool {
	return o == OutcomeAdded || o == OutcomeReplaced
}

// Decision about a registration that can't be reconciled
type Decision int

// Decisions of a replace policy
const (
	// Keep the current mapping
	Keep Decision = iota
	// Replace the current mapping this time
	Replace
	// AlwaysReplace the mapping, without asking again for the lifetime of the registry
	AlwaysReplace
)

// ReplacePolicy decides whether an incoming node replaces a mapped node that can't be fetched
type ReplacePolicy func(ctx context.Context, tjpAddr, mappedAddr string, incoming *ibgib.Node) (Decision, error)

// AlwaysReplacePolicy treats incoming nodes as authoritative
func AlwaysReplacePolicy() ReplacePolicy {
	return func(context.Context, string, string, *ibgib.Node) (Decision, error) {
		return AlwaysReplace, nil
	}
}

// Update is the payload of change events, published on the tjp address topic
type Update struct {
	TjpAddr    string
	LatestAddr string

	// Latest node, when it could be fetched
	Latest *ibgib.Node
}
