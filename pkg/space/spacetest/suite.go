package spacetest

import (
	"context"
	"sort"
	"testing"

	"github.com/oneconcern/gibsync/pkg/clock"
	"github.com/oneconcern/gibsync/pkg/errors"
	"github.com/oneconcern/gibsync/pkg/ibgib"
	"github.com/oneconcern/gibsync/pkg/space"
	"github.com/oneconcern/gibsync/pkg/witness"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory creates an empty space and its cleanup function
type Factory func(t testing.TB) (space.Space, func())

// Run the conformance suite against spaces built by the factory
func Run(t *testing.T, factory Factory) {
	for _, tc := range []struct {
		name string
		test func(*testing.T, space.Space, clock.Clock)
	}{
		{"RoundTrip", testRoundTrip},
		{"Idempotence", testIdempotence},
		{"NotFound", testNotFound},
		{"Areas", testAreas},
		{"Addrs", testAddrs},
		{"Can", testCan},
		{"Delete", testDelete},
		{"Binary", testBinary},
		{"Validation", testValidation},
		{"Completeness", testCompleteness},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			s, cleanup := factory(t)
			defer cleanup()
			tc.test(t, s, Clock())
		})
	}
}

func mustPut(t *testing.T, s space.Space, clk clock.Clock, opts space.Options, nodes ...*ibgib.Node) *space.Result {
	t.Helper()
	res, err := space.Put(context.Background(), s, clk, opts, nodes...)
	require.NoError(t, err)
	require.NotNil(t, res.Node, "response must carry its identity")
	return res
}

func mustGet(t *testing.T, s space.Space, clk clock.Clock, opts space.Options) *space.Result {
	t.Helper()
	res, err := space.Get(context.Background(), s, clk, opts)
	require.NoError(t, err)
	return res
}

func encoded(t *testing.T, n *ibgib.Node) string {
	t.Helper()
	buf, err := ibgib.Encode(n)
	require.NoError(t, err)
	return string(buf)
}

func testRoundTrip(t *testing.T, s space.Space, clk clock.Clock) {
	chain := Timeline(t, "comment", 3)
	res := mustPut(t, s, clk, space.Options{}, chain...)
	require.True(t, res.Data.Success, "%v", res.Data.Errors)
	assert.ElementsMatch(t, Addrs(chain), res.Data.Addrs)

	got := mustGet(t, s, clk, space.Options{Addrs: Addrs(chain)})
	require.True(t, got.Data.Success)
	require.Len(t, got.Nodes, len(chain))
	idx := got.Index()
	for _, n := range chain {
		back, ok := idx[n.Addr()]
		require.True(t, ok)
		assert.Equal(t, encoded(t, n), encoded(t, back))
		require.NoError(t, ibgib.Verify(back))
	}
	assert.NotEmpty(t, got.Node.Addr())
	assert.NotEmpty(t, got.Data.OptsAddr)
}

func testIdempotence(t *testing.T, s space.Space, clk clock.Clock) {
	nodes := Nodes(t, "item", 3)
	mustPut(t, s, clk, space.Options{}, nodes...)

	again := mustPut(t, s, clk, space.Options{}, nodes...)
	require.True(t, again.Data.Success)
	assert.ElementsMatch(t, Addrs(nodes), again.Data.AddrsAlreadyHave)
	assert.Empty(t, again.Data.Addrs)

	forced := mustPut(t, s, clk, space.Options{Force: true}, nodes[0])
	require.True(t, forced.Data.Success)
	assert.Empty(t, forced.Data.AddrsAlreadyHave)
	assert.Equal(t, []string{nodes[0].Addr()}, forced.Data.Addrs)
	require.NotEmpty(t, forced.Data.Warnings)

	got := mustGet(t, s, clk, space.Options{Addrs: Addrs(nodes)})
	require.Len(t, got.Nodes, 3)
	assert.Equal(t, encoded(t, nodes[0]), encoded(t, got.Index()[nodes[0].Addr()]))
}

func testNotFound(t *testing.T, s space.Space, clk clock.Clock) {
	nodes := Nodes(t, "item", 1)
	mustPut(t, s, clk, space.Options{}, nodes...)

	missing := Node(t, "missing", nil, nil).Addr()
	got := mustGet(t, s, clk, space.Options{Addrs: []string{nodes[0].Addr(), missing}})
	assert.True(t, got.Data.Success, "not found is not an error")
	assert.Len(t, got.Nodes, 1)
	assert.Equal(t, []string{missing}, got.Data.AddrsNotFound)
	assert.Empty(t, got.Data.Errors)
}

func testAreas(t *testing.T, s space.Space, clk clock.Clock) {
	metaNode := Node(t, "settings", map[string]interface{}{"theme": "dark"}, nil)
	dnaNode := Node(t, "dna", map[string]interface{}{"type": "fork"}, nil)
	mustPut(t, s, clk, space.Options{IsMeta: true}, metaNode)
	mustPut(t, s, clk, space.Options{IsDna: true}, dnaNode)

	got := mustGet(t, s, clk, space.Options{Addrs: []string{metaNode.Addr(), dnaNode.Addr()}})
	assert.Len(t, got.Nodes, 2, "unflagged get searches every node area")

	got = mustGet(t, s, clk, space.Options{Addrs: []string{metaNode.Addr(), dnaNode.Addr()}, IsMeta: true})
	require.Len(t, got.Nodes, 1)
	assert.Equal(t, metaNode.Addr(), got.Nodes[0].Addr())
	assert.Equal(t, []string{dnaNode.Addr()}, got.Data.AddrsNotFound)

	got = mustGet(t, s, clk, space.Options{Addrs: []string{metaNode.Addr()}, IsDna: true})
	assert.Empty(t, got.Nodes)
}

func testAddrs(t *testing.T, s space.Space, clk clock.Clock) {
	nodes := Nodes(t, "item", 4)
	mustPut(t, s, clk, space.Options{}, nodes[:3]...)
	mustPut(t, s, clk, space.Options{IsMeta: true}, nodes[3])

	got := mustGet(t, s, clk, space.Options{Modifiers: []space.Modifier{space.ModAddrs}})
	require.True(t, got.Data.Success)
	assert.ElementsMatch(t, Addrs(nodes), got.Data.Addrs)
}

func testCan(t *testing.T, s space.Space, clk clock.Clock) {
	ctx := context.Background()
	nodes := Nodes(t, "item", 2)
	mustPut(t, s, clk, space.Options{}, nodes[0])

	can, err := space.Get(ctx, s, clk, space.Options{Modifiers: []space.Modifier{space.ModCan}, Addrs: Addrs(nodes)})
	require.NoError(t, err)
	assert.False(t, can.Data.Can)
	assert.Equal(t, []string{nodes[1].Addr()}, can.Data.AddrsNotFound)

	can, err = space.Get(ctx, s, clk, space.Options{Modifiers: []space.Modifier{space.ModCan}, Addrs: Addrs(nodes[:1])})
	require.NoError(t, err)
	assert.True(t, can.Data.Can)

	canPut, err := space.Put(ctx, s, clk, space.Options{Modifiers: []space.Modifier{space.ModCan}}, nodes...)
	require.NoError(t, err)
	assert.True(t, canPut.Data.Can)
	assert.Equal(t, []string{nodes[0].Addr()}, canPut.Data.AddrsAlreadyHave)

	canPut, err = space.Put(ctx, s, clk, space.Options{Modifiers: []space.Modifier{space.ModCan}}, nodes[0])
	require.NoError(t, err)
	assert.False(t, canPut.Data.Can, "nothing would be written")

	canDel, err := space.Delete(ctx, s, clk, space.Options{Modifiers: []space.Modifier{space.ModCan}, Addrs: Addrs(nodes)})
	require.NoError(t, err)
	assert.False(t, canDel.Data.Can)

	got := mustGet(t, s, clk, space.Options{Modifiers: []space.Modifier{space.ModAddrs}})
	assert.Equal(t, []string{nodes[0].Addr()}, got.Data.Addrs, "dry runs never write")
}

func testDelete(t *testing.T, s space.Space, clk clock.Clock) {
	ctx := context.Background()
	nodes := Nodes(t, "item", 2)
	mustPut(t, s, clk, space.Options{}, nodes...)

	missing := Node(t, "missing", nil, nil).Addr()
	del, err := space.Delete(ctx, s, clk, space.Options{Addrs: []string{nodes[0].Addr(), missing}})
	require.NoError(t, err)
	require.True(t, del.Data.Success, "%v", del.Data.Errors)
	assert.Equal(t, []string{nodes[0].Addr()}, del.Data.Addrs)
	assert.Equal(t, []string{missing}, del.Data.AddrsNotFound)

	got := mustGet(t, s, clk, space.Options{Addrs: Addrs(nodes)})
	require.Len(t, got.Nodes, 1)
	assert.Equal(t, nodes[1].Addr(), got.Nodes[0].Addr())
	assert.Equal(t, []string{nodes[0].Addr()}, got.Data.AddrsNotFound)
}

func testBinary(t *testing.T, s space.Space, clk clock.Clock) {
	ctx := context.Background()
	data := []byte("\x89PNG not really")
	binHash := ibgib.HexDigestBytes(ibgib.SHA256, data)

	res, err := space.Call(ctx, s, clk, space.Options{Cmd: space.CmdPut, BinHash: binHash, BinExt: "png"}, nil, data)
	require.NoError(t, err)
	require.True(t, res.Data.Success, "%v", res.Data.Errors)
	assert.Equal(t, []string{ibgib.BinAddr(binHash, "png")}, res.Data.Addrs)

	got := mustGet(t, s, clk, space.Options{BinHash: binHash, BinExt: "png"})
	assert.Equal(t, data, got.BinData)

	got = mustGet(t, s, clk, space.Options{BinHash: binHash, BinExt: "jpg"})
	assert.Empty(t, got.BinData)
	assert.Equal(t, []string{ibgib.BinAddr(binHash, "jpg")}, got.Data.AddrsNotFound)

	_, err = space.Call(ctx, s, clk, space.Options{Cmd: space.CmdPut, BinHash: "deadbeef", BinExt: "png"}, nil, data)
	require.True(t, errors.Is(err, witness.ErrInvalidRequest))

	listed := mustGet(t, s, clk, space.Options{Modifiers: []space.Modifier{space.ModAddrs}})
	assert.Empty(t, listed.Data.Addrs, "binaries are not listed as nodes")
}

func testValidation(t *testing.T, s space.Space, clk clock.Clock) {
	ctx := context.Background()
	good := Nodes(t, "item", 1)[0]
	tampered := good.Clone()
	tampered.Data["i"] = 42

	for _, tc := range []struct {
		name  string
		opts  space.Options
		nodes []*ibgib.Node
	}{
		{"get without addresses", space.Options{Cmd: space.CmdGet}, nil},
		{"put without nodes", space.Options{Cmd: space.CmdPut}, nil},
		{"delete without addresses", space.Options{Cmd: space.CmdDelete}, nil},
		{"unknown command", space.Options{Cmd: "patch", Addrs: []string{good.Addr()}}, nil},
		{"unsupported modifiers", space.Options{Cmd: space.CmdPut, Modifiers: []space.Modifier{space.ModLatest}}, []*ibgib.Node{good}},
		{"tampered node", space.Options{Cmd: space.CmdPut}, []*ibgib.Node{tampered}},
		{"primitive node", space.Options{Cmd: space.CmdPut}, []*ibgib.Node{ibgib.NewPrimitive("ib")}},
	} {
		_, err := space.Call(ctx, s, clk, tc.opts, tc.nodes, nil)
		require.Error(t, err, tc.name)
		assert.True(t, errors.Is(err, witness.ErrInvalidRequest), tc.name)
	}

	_, err := s.Witness(ctx, &space.Arg{Options: space.Options{Cmd: space.CmdGet, Addrs: []string{good.Addr()}}})
	require.Error(t, err, "a request without identity is invalid")

	got := mustGet(t, s, clk, space.Options{Modifiers: []space.Modifier{space.ModAddrs}})
	assert.Empty(t, got.Data.Addrs, "invalid requests never reach storage")
}

func testCompleteness(t *testing.T, s space.Space, clk clock.Clock) {
	nodes := Nodes(t, "item", 20)
	stored := make([]*ibgib.Node, 0, 10)
	for i, n := range nodes {
		if i%2 == 0 {
			stored = append(stored, n)
		}
	}
	mustPut(t, s, clk, space.Options{}, stored...)

	requested := append(Addrs(nodes), nodes[0].Addr(), nodes[1].Addr())
	got := mustGet(t, s, clk, space.Options{Addrs: requested})

	union := append(Addrs(got.Nodes), got.Data.AddrsNotFound...)
	sort.Strings(union)
	want := Addrs(nodes)
	sort.Strings(want)
	assert.Equal(t, want, union, "every address is found or not found exactly once")
}
