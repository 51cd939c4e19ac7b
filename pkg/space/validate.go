package space

import (
	"fmt"
	"sort"
	"strings"

	"github.com/oneconcern/gibsync/pkg/ibgib"
)

// Operation names, as dispatched by the router
const (
	OpGet       = "get"
	OpCanGet    = "canGet"
	OpGetAddrs  = "getAddrs"
	OpGetLatest = "getLatest"
	OpPut       = "put"
	OpCanPut    = "canPut"
	OpDelete    = "delete"
	OpCanDelete = "canDelete"
)

// routes maps a command and its sorted, joined modifiers to an operation
var routes = map[Cmd]map[string]string{
	CmdGet: {
		"":             OpGet,
		"can":          OpCanGet,
		"addrs":        OpGetAddrs,
		"latest":       OpGetLatest,
		"addrs,latest": OpGetLatest,
	},
	CmdPut: {
		"":    OpPut,
		"can": OpCanPut,
	},
	CmdDelete: {
		"":    OpDelete,
		"can": OpCanDelete,
	},
}

// Route resolves the operation for some request options
func Route(o Options) (string, bool) {
	mods := make([]string, 0, len(o.Modifiers))
	seen := make(map[Modifier]bool, len(o.Modifiers))
	for _, m := range o.Modifiers {
		if seen[m] {
			continue
		}
		seen[m] = true
		mods = append(mods, string(m))
	}
	sort.Strings(mods)
	byMods, ok := routes[o.Cmd]
	if !ok {
		return "", false
	}
	op, ok := byMods[strings.Join(mods, ",")]
	return op, ok
}

// Validate returns the problems that make this request unusable
func (a *Arg) Validate() []string {
	if a.Node == nil {
		return []string{"request node required"}
	}
	var problems []string
	o := a.Options

	op, ok := Route(o)
	if !ok {
		return append(problems, fmt.Sprintf("unsupported command %q with modifiers %v", o.Cmd, o.Modifiers))
	}

	switch o.Cmd {
	case CmdGet:
		if !o.Has(ModAddrs) && len(o.Addrs) == 0 && !o.IsBinary() {
			problems = append(problems, "addresses required")
		}
	case CmdPut:
		hasPayload := len(a.Nodes) > 0 || (o.IsBinary() && len(a.BinData) > 0)
		if op == OpCanPut {
			hasPayload = hasPayload || len(o.Addrs) > 0 || o.IsBinary()
		}
		if !hasPayload {
			problems = append(problems, "nodes required")
		}
		if op == OpPut {
			problems = append(problems, a.validatePayload()...)
		}
	case CmdDelete:
		if len(o.Addrs) == 0 && !o.IsBinary() {
			problems = append(problems, "addresses required")
		}
	}
	return problems
}

func (a *Arg) validatePayload() []string {
	var problems []string
	for i, n := range a.Nodes {
		switch {
		case n == nil:
			problems = append(problems, fmt.Sprintf("node %d is nil", i))
		case n.IsPrimitive():
			problems = append(problems, fmt.Sprintf("primitive %s can't be stored", n.Addr()))
		default:
			if err := ibgib.Verify(n); err != nil {
				problems = append(problems, err.Error())
			}
		}
	}
	if a.Options.IsBinary() {
		if len(a.BinData) == 0 {
			problems = append(problems, "binary data required")
		} else if got := ibgib.HexDigestBytes(a.binHasher, a.BinData); got != a.Options.BinHash {
			problems = append(problems, fmt.Sprintf("binary hash mismatch: claimed %s, computed %s", a.Options.BinHash, got))
		}
	}
	return problems
}
