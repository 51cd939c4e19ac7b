// Package spacetest provides fixtures and a conformance suite for spaces.
package spacetest

import (
	"fmt"
	"testing"
	"time"

	"github.com/oneconcern/gibsync/pkg/clock"
	"github.com/oneconcern/gibsync/pkg/ibgib"
	"github.com/stretchr/testify/require"
)

// Epoch is the start time of fake clocks in tests
var Epoch = time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)

// Clock returns a fake clock starting at Epoch
func Clock() *clock.Fake {
	return clock.NewFake(Epoch)
}

// Node builds a sealed node
func Node(t testing.TB, id string, data map[string]interface{}, rels map[string][]string) *ibgib.Node {
	t.Helper()
	n, err := ibgib.Seal(&ibgib.Node{ID: id, Data: data, Relations: rels})
	require.NoError(t, err)
	return n
}

// Nodes builds count distinct sealed nodes
func Nodes(t testing.TB, prefix string, count int) []*ibgib.Node {
	t.Helper()
	nodes := make([]*ibgib.Node, 0, count)
	for i := 0; i < count; i++ {
		nodes = append(nodes, Node(t, prefix, map[string]interface{}{"i": i}, nil))
	}
	return nodes
}

// Next derives the next version of a node in its timeline.
//
// When linked is true only the immediate predecessor is kept in past,
// otherwise the full history is carried. The tjp relation is set once the
// timeline has an origin flagged with isTjp.
func Next(t testing.TB, prev *ibgib.Node, data map[string]interface{}, linked bool) *ibgib.Node {
	t.Helper()
	next := prev.Clone()
	if next.Data == nil {
		next.Data = map[string]interface{}{}
	}
	for k, v := range data {
		next.Data[k] = v
	}
	delete(next.Data, ibgib.DataIsTjp)
	if next.Relations == nil {
		next.Relations = map[string][]string{}
	}
	past := next.Relations[ibgib.RelPast]
	if linked {
		past = nil
	}
	next.Relations[ibgib.RelPast] = append(append([]string(nil), past...), prev.Addr())
	if ibgib.IsTjp(prev) {
		next.Relations[ibgib.RelTjp] = []string{prev.Addr()}
	}
	n, err := ibgib.Seal(next)
	require.NoError(t, err)
	return n
}

// Timeline builds an origin flagged as tjp followed by count-1 versions
func Timeline(t testing.TB, id string, count int) []*ibgib.Node {
	t.Helper()
	origin := Node(t, id, map[string]interface{}{ibgib.DataIsTjp: true}, nil)
	chain := []*ibgib.Node{origin}
	for i := 1; i < count; i++ {
		chain = append(chain, Next(t, chain[i-1], map[string]interface{}{"v": fmt.Sprintf("%s-%d", id, i)}, false))
	}
	return chain
}

// Addrs of nodes
func Addrs(nodes []*ibgib.Node) []string {
	addrs := make([]string, 0, len(nodes))
	for _, n := range nodes {
		addrs = append(addrs, n.Addr())
	}
	return addrs
}
