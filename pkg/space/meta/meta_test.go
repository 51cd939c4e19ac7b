package meta_test

import (
	"context"
	"strings"
	"testing"

	"github.com/oneconcern/gibsync/pkg/errors"
	"github.com/oneconcern/gibsync/pkg/space"
	"github.com/oneconcern/gibsync/pkg/space/memory"
	"github.com/oneconcern/gibsync/pkg/space/meta"
	"github.com/oneconcern/gibsync/pkg/space/spacetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var errBroken = errors.New("disk on fire")

type broken struct{}

func (broken) String() string { return "broken" }

func (broken) Witness(context.Context, *space.Arg) (*space.Result, error) {
	return nil, errBroken
}

func (broken) Close() error { return nil }

func TestPolicies(t *testing.T) {
	for _, tc := range []struct {
		policy    meta.Policy
		succeeded int
		total     int
		want      bool
	}{
		{meta.Any(), 1, 3, true},
		{meta.Any(), 0, 3, false},
		{meta.All(), 3, 3, true},
		{meta.All(), 2, 3, false},
		{meta.Quorum(2), 2, 3, true},
		{meta.Quorum(2), 1, 3, false},
		{meta.Quorum(5), 2, 2, true},
		{meta.Any(), 0, 0, false},
	} {
		assert.Equal(t, tc.want, tc.policy.Satisfied(tc.succeeded, tc.total), "%s with %d/%d", tc.policy, tc.succeeded, tc.total)
	}

	for in, want := range map[string]string{"": "any", "any": "any", "all": "all", "quorum(2)": "quorum(2)"} {
		p, err := meta.ParsePolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, p.String())
	}
	_, err := meta.ParsePolicy("most")
	assert.Error(t, err)
	_, err = meta.ParsePolicy("quorum(0)")
	assert.Error(t, err)
}

func TestConformance(t *testing.T) {
	spacetest.Run(t, func(t testing.TB) (space.Space, func()) {
		s := meta.New(meta.All(), []meta.Unit{
			{Name: "a", Space: memory.New()},
			{Name: "b", Space: memory.New()},
		})
		return s, func() { _ = s.Close() }
	})
}

func TestFanOut(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
	ctx := context.Background()
	clk := spacetest.Clock()
	a, b := memory.New(), memory.New()
	s := meta.New(meta.All(), []meta.Unit{{Name: "a", Space: a}, {Name: "b", Space: b}})
	nodes := spacetest.Nodes(t, "item", 3)

	res, err := space.Put(ctx, s, clk, space.Options{}, nodes...)
	require.NoError(t, err)
	require.True(t, res.Data.Success, "%v", res.Data.Errors)
	assert.Equal(t, spacetest.Addrs(nodes), res.Data.Addrs)

	for _, unit := range []space.Space{a, b} {
		got, err := space.Get(ctx, unit, clk, space.Options{Addrs: spacetest.Addrs(nodes)})
		require.NoError(t, err)
		assert.Len(t, got.Nodes, 3, "written to %s", unit)
	}
}

func TestMergeGet(t *testing.T) {
	ctx := context.Background()
	clk := spacetest.Clock()
	a, b := memory.New(), memory.New()
	nodes := spacetest.Nodes(t, "item", 3)
	_, err := space.Put(ctx, a, clk, space.Options{}, nodes[0])
	require.NoError(t, err)
	_, err = space.Put(ctx, b, clk, space.Options{}, nodes[1])
	require.NoError(t, err)

	s := meta.New(meta.Any(), []meta.Unit{{Name: "a", Space: a}, {Name: "b", Space: b}, {Name: "broken", Space: broken{}}})
	got, err := space.Get(ctx, s, clk, space.Options{Addrs: spacetest.Addrs(nodes)})
	require.NoError(t, err)
	require.True(t, got.Data.Success)
	assert.ElementsMatch(t, spacetest.Addrs(nodes[:2]), spacetest.Addrs(got.Nodes))
	assert.Equal(t, []string{nodes[2].Addr()}, got.Data.AddrsNotFound)
	require.Len(t, got.Data.Errors, 1)
	assert.True(t, strings.HasPrefix(got.Data.Errors[0], "broken: "), got.Data.Errors[0])
	assert.NotEmpty(t, got.Node.Addr(), "same response shape as any space")
}

func TestPolicyOutcome(t *testing.T) {
	ctx := context.Background()
	clk := spacetest.Clock()
	nodes := spacetest.Nodes(t, "item", 2)

	for _, tc := range []struct {
		policy meta.Policy
		want   bool
	}{
		{meta.Any(), true},
		{meta.Quorum(2), true},
		{meta.Quorum(3), false},
		{meta.All(), false},
	} {
		s := meta.New(tc.policy, []meta.Unit{{Space: memory.New()}, {Space: memory.New()}, {Space: broken{}}})
		res, err := space.Put(ctx, s, clk, space.Options{}, nodes...)
		require.NoError(t, err)
		assert.Equal(t, tc.want, res.Data.Success, "%s", tc.policy)
		assert.Equal(t, spacetest.Addrs(nodes), res.Data.Addrs, "%s", tc.policy)
	}
}

func TestCan(t *testing.T) {
	ctx := context.Background()
	clk := spacetest.Clock()
	full, empty := memory.New(), memory.New()
	nodes := spacetest.Nodes(t, "item", 2)
	_, err := space.Put(ctx, full, clk, space.Options{}, nodes...)
	require.NoError(t, err)
	units := []meta.Unit{{Name: "full", Space: full}, {Name: "empty", Space: empty}}
	canGet := space.Options{Modifiers: []space.Modifier{space.ModCan}, Addrs: spacetest.Addrs(nodes)}

	res, err := space.Get(ctx, meta.New(meta.Any(), units), clk, canGet)
	require.NoError(t, err)
	assert.True(t, res.Data.Can)

	res, err = space.Get(ctx, meta.New(meta.All(), units), clk, canGet)
	require.NoError(t, err)
	assert.False(t, res.Data.Can)
}

func TestUnitOps(t *testing.T) {
	ctx := context.Background()
	clk := spacetest.Clock()
	writable, readOnly := memory.New(), memory.New()
	s := meta.New(meta.All(), []meta.Unit{
		{Name: "rw", Space: writable},
		{Name: "ro", Space: readOnly, Ops: []string{space.OpGet, space.OpCanGet, space.OpGetAddrs}},
	})
	n := spacetest.Nodes(t, "item", 1)[0]

	res, err := space.Put(ctx, s, clk, space.Options{}, n)
	require.NoError(t, err)
	require.True(t, res.Data.Success)

	got, err := space.Get(ctx, readOnly, clk, space.Options{Addrs: []string{n.Addr()}})
	require.NoError(t, err)
	assert.Empty(t, got.Nodes, "read-only units are not written")

	got, err = space.Get(ctx, s, clk, space.Options{Addrs: []string{n.Addr()}})
	require.NoError(t, err)
	assert.True(t, got.Data.Success)
	assert.Len(t, got.Nodes, 1)

	none := meta.New(meta.Any(), []meta.Unit{{Name: "ro", Space: readOnly, Ops: []string{space.OpGet}}})
	res, err = space.Delete(ctx, none, clk, space.Options{Addrs: []string{n.Addr()}})
	require.NoError(t, err)
	assert.False(t, res.Data.Success)
	assert.Contains(t, strings.Join(res.Data.Errors, ""), "no unit serves")
}
