package dynamo

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/oneconcern/gibsync/pkg/clock"
	"github.com/oneconcern/gibsync/pkg/errors"
	"github.com/oneconcern/gibsync/pkg/ibgib"
	"github.com/oneconcern/gibsync/pkg/space"
	"github.com/oneconcern/gibsync/pkg/space/spacetest"
	"github.com/oneconcern/gibsync/pkg/space/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	throttlePut = time.Second
	throttleGet = 500 * time.Millisecond
	base        = 10 * time.Millisecond
)

func newBackend(api dynamodbiface.DynamoDBAPI, opts ...Option) (*Backend, *clock.Fake) {
	clk := spacetest.Clock()
	defaults := []Option{
		Table("ibgibs"),
		Clock(clk),
		Throttle(throttlePut, throttleGet),
		ThroughputRetries(2, 3*time.Second),
		UnprocessedRetries(5, base),
	}
	return NewBackend(api, append(defaults, opts...)...), clk
}

func call(t *testing.T, b *Backend, opts space.Options, nodes ...*ibgib.Node) *space.Result {
	t.Helper()
	clk := spacetest.Clock()
	res, err := space.Call(context.Background(), New(b, space.Clock(clk)), clk, opts, nodes, nil)
	require.NoError(t, err)
	return res
}

func joined(res *space.Result) string {
	return strings.Join(res.Data.Errors, "\n")
}

func TestConformance(t *testing.T) {
	spacetest.Run(t, func(t testing.TB) (space.Space, func()) {
		b, _ := newBackend(newFakeTable(), BatchSizes(3, 4))
		return New(b), func() {}
	})
}

func TestKeyDerivation(t *testing.T) {
	table := newFakeTable()
	b, _ := newBackend(table)
	n := spacetest.Node(t, "comment", map[string]interface{}{"text": "hello"}, nil)

	res := call(t, b, space.Options{Cmd: space.CmdPut}, n)
	require.True(t, res.Data.Success, "%v", res.Data.Errors)

	key := ibgib.HexDigest(ibgib.SHA256, n.Addr())
	require.Contains(t, table.items, key)
	assert.Equal(t, n.ID, *table.items[key][attrIb].S)
	assert.Equal(t, n.ContentHash, *table.items[key][attrGib].S)

	blake, _ := newBackend(newFakeTable(), KeyHash(ibgib.Blake2b))
	assert.NotEqual(t, key, blake.key(n.Addr()))
	assert.Len(t, blake.key(n.Addr()), 64)
}

func TestPutBatches(t *testing.T) {
	table := newFakeTable()
	b, clk := newBackend(table, BatchSizes(100, 100))
	nodes := spacetest.Nodes(t, "item", 230)

	res := call(t, b, space.Options{Cmd: space.CmdPut, Force: true}, nodes...)
	require.True(t, res.Data.Success, joined(res))
	assert.ElementsMatch(t, spacetest.Addrs(nodes), res.Data.Addrs)
	assert.Empty(t, res.Data.AddrsErrored)

	assert.Equal(t, []int{100, 100, 30}, table.writeSizes())
	assert.Equal(t, []time.Duration{throttlePut, throttlePut}, clk.Sleeps(), "throttled between batches, not before the first")
	assert.Len(t, table.items, 230)
}

func TestPutChecksExistence(t *testing.T) {
	table := newFakeTable()
	b, clk := newBackend(table, BatchSizes(100, 100))
	nodes := spacetest.Nodes(t, "item", 230)

	res := call(t, b, space.Options{Cmd: space.CmdPut}, nodes...)
	require.True(t, res.Data.Success, joined(res))
	assert.Len(t, table.reads, 3)
	assert.Equal(t, []time.Duration{throttleGet, throttleGet, throttlePut, throttlePut}, clk.Sleeps())

	again := call(t, b, space.Options{Cmd: space.CmdPut}, nodes[:10]...)
	require.True(t, again.Data.Success)
	assert.ElementsMatch(t, spacetest.Addrs(nodes[:10]), again.Data.AddrsAlreadyHave)
	assert.Empty(t, again.Data.Addrs)
	assert.Len(t, table.writes, 3, "nothing left to write")
}

func TestUnprocessedBackoff(t *testing.T) {
	table := newFakeTable()
	table.writeScript = []int{5, 5, 0}
	b, clk := newBackend(table)
	nodes := spacetest.Nodes(t, "item", 25)

	res := call(t, b, space.Options{Cmd: space.CmdPut, Force: true}, nodes...)
	require.True(t, res.Data.Success, joined(res))
	assert.Equal(t, []int{25, 5, 5}, table.writeSizes())
	assert.Equal(t, []time.Duration{2 * base}, clk.Sleeps(), "progress resubmits immediately, a stall backs off")
	assert.Len(t, table.items, 25)
}

func TestUnprocessedExhausted(t *testing.T) {
	table := newFakeTable()
	table.writeScript = []int{-1, -1, -1, -1, -1, -1, -1, -1}
	b, clk := newBackend(table)
	nodes := spacetest.Nodes(t, "item", 3)

	res := call(t, b, space.Options{Cmd: space.CmdPut, Force: true}, nodes...)
	require.False(t, res.Data.Success)
	assert.ElementsMatch(t, spacetest.Addrs(nodes), res.Data.AddrsErrored)
	assert.Empty(t, res.Data.Addrs)
	assert.Contains(t, joined(res), "unprocessed")
	assert.Len(t, table.writes, 6)
	assert.Equal(t, []time.Duration{2 * base, 4 * base, 8 * base, 16 * base, 32 * base}, clk.Sleeps())
}

func TestUnprocessedPartialFailure(t *testing.T) {
	table := newFakeTable()
	table.writeScript = []int{0, -1, -1, -1, -1, -1, -1}
	b, _ := newBackend(table, BatchSizes(2, 100))
	nodes := spacetest.Nodes(t, "item", 4)

	res := call(t, b, space.Options{Cmd: space.CmdPut, Force: true}, nodes...)
	require.False(t, res.Data.Success)
	assert.Equal(t, spacetest.Addrs(nodes[:2]), res.Data.Addrs, "processed batches are not rolled back")
	assert.ElementsMatch(t, spacetest.Addrs(nodes[2:]), res.Data.AddrsErrored)
}

func TestUnprocessedReads(t *testing.T) {
	table := newFakeTable()
	b, clk := newBackend(table)
	nodes := spacetest.Nodes(t, "item", 5)
	res := call(t, b, space.Options{Cmd: space.CmdPut, Force: true}, nodes...)
	require.True(t, res.Data.Success)

	table.readScript = []int{2}
	got := call(t, b, space.Options{Cmd: space.CmdGet, Addrs: spacetest.Addrs(nodes)})
	require.True(t, got.Data.Success, joined(got))
	assert.Len(t, got.Nodes, 5)
	require.Len(t, table.reads, 2)
	assert.Len(t, table.reads[1], 2)
	assert.Empty(t, clk.Sleeps())
}

func TestThroughputRetry(t *testing.T) {
	api := &mockAPI{}
	throttled := awserr.New(ThroughputErrorCode, "slow down", nil)
	api.On("BatchWriteItemWithContext", mock.Anything, mock.Anything).Return(nil, throttled).Twice()
	api.On("BatchWriteItemWithContext", mock.Anything, mock.Anything).Return(&dynamodb.BatchWriteItemOutput{}, nil).Once()
	b, clk := newBackend(api)

	res := call(t, b, space.Options{Cmd: space.CmdPut, Force: true}, spacetest.Nodes(t, "item", 2)...)
	require.True(t, res.Data.Success, joined(res))
	api.AssertNumberOfCalls(t, "BatchWriteItemWithContext", 3)
	assert.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second}, clk.Sleeps())
}

func TestThroughputExhausted(t *testing.T) {
	api := &mockAPI{}
	throttled := awserr.New(ThroughputErrorCode, "slow down", nil)
	api.On("BatchWriteItemWithContext", mock.Anything, mock.Anything).Return(nil, throttled)
	b, _ := newBackend(api)
	nodes := spacetest.Nodes(t, "item", 2)

	res := call(t, b, space.Options{Cmd: space.CmdPut, Force: true}, nodes...)
	require.False(t, res.Data.Success)
	assert.Contains(t, joined(res), "throughput exceeded")
	assert.ElementsMatch(t, spacetest.Addrs(nodes), res.Data.AddrsErrored)
	api.AssertNumberOfCalls(t, "BatchWriteItemWithContext", 3)
}

func TestAPIErrors(t *testing.T) {
	api := &mockAPI{}
	missing := awserr.NewRequestFailure(awserr.New(dynamodb.ErrCodeResourceNotFoundException, "no such table", nil), 400, "req-1")
	api.On("BatchGetItemWithContext", mock.Anything, mock.Anything).Return(nil, missing)
	b, clk := newBackend(api)
	n := spacetest.Nodes(t, "item", 1)[0]

	res := call(t, b, space.Options{Cmd: space.CmdGet, Addrs: []string{n.Addr()}})
	require.False(t, res.Data.Success)
	assert.Equal(t, []string{n.Addr()}, res.Data.AddrsErrored)
	assert.Contains(t, joined(res), "invalid storage resource name")
	api.AssertNumberOfCalls(t, "BatchGetItemWithContext", 1)
	assert.Empty(t, clk.Sleeps(), "only throughput errors are retried")

	for _, tc := range []struct {
		code   int
		target error
	}{
		{401, status.ErrUnauthorized},
		{403, status.ErrForbidden},
		{500, status.ErrStorageAPI},
	} {
		err := toSentinelErrors(awserr.NewRequestFailure(awserr.New("Whatever", "boom", nil), tc.code, "req"))
		assert.True(t, errors.Is(err, tc.target), "status %d", tc.code)
	}
}

func TestGetVerifiesNodes(t *testing.T) {
	table := newFakeTable()
	b, _ := newBackend(table)
	n := spacetest.Node(t, "comment", map[string]interface{}{"text": "hello"}, nil)
	res := call(t, b, space.Options{Cmd: space.CmdPut}, n)
	require.True(t, res.Data.Success)

	tampered := `{"text":"goodbye"}`
	table.items[b.key(n.Addr())][attrData] = &dynamodb.AttributeValue{S: &tampered}

	got := call(t, b, space.Options{Cmd: space.CmdGet, Addrs: []string{n.Addr()}})
	assert.False(t, got.Data.Success)
	assert.Empty(t, got.Nodes)
	assert.Equal(t, []string{n.Addr()}, got.Data.AddrsErrored)
}

func TestGetLatest(t *testing.T) {
	table := newFakeTable()
	b, _ := newBackend(table)

	origin := spacetest.Node(t, "doc", map[string]interface{}{ibgib.DataIsTjp: true}, nil)
	v1 := spacetest.Next(t, origin, map[string]interface{}{ibgib.DataCounter: 1}, false)
	v2 := spacetest.Next(t, v1, map[string]interface{}{ibgib.DataCounter: 2}, false)
	lonely := spacetest.Node(t, "draft", map[string]interface{}{ibgib.DataIsTjp: true}, nil)
	res := call(t, b, space.Options{Cmd: space.CmdPut}, v1, origin, v2, lonely)
	require.True(t, res.Data.Success, joined(res))

	missing := spacetest.Node(t, "missing", map[string]interface{}{ibgib.DataIsTjp: true}, nil).Addr()
	addrs := call(t, b, space.Options{
		Cmd:       space.CmdGet,
		Modifiers: []space.Modifier{space.ModLatest, space.ModAddrs},
		Addrs:     []string{origin.Addr(), lonely.Addr(), missing},
	})
	require.True(t, addrs.Data.Success, joined(addrs))
	assert.Equal(t, []string{v2.Addr(), lonely.Addr()}, addrs.Data.Addrs)
	assert.Equal(t, []string{missing}, addrs.Data.AddrsNotFound)
	assert.Empty(t, addrs.Nodes)

	nodes := call(t, b, space.Options{
		Cmd:       space.CmdGet,
		Modifiers: []space.Modifier{space.ModLatest},
		Addrs:     []string{origin.Addr()},
	})
	require.True(t, nodes.Data.Success, joined(nodes))
	require.Len(t, nodes.Nodes, 1)
	assert.Equal(t, v2.Addr(), nodes.Nodes[0].Addr())
}

func TestOptions(t *testing.T) {
	b := NewBackend(newFakeTable(), BatchSizes(0, -1), PrimaryKeyName(""), Deadline(0))
	assert.Equal(t, DefaultPutBatchSize, b.putBatch, "non-positive sizes keep defaults")
	assert.Equal(t, DefaultGetBatchSize, b.getBatch)
	assert.Equal(t, DefaultPrimaryKeyName, b.pk)
	assert.Equal(t, "dynamo:", b.String())

	ctx, cancel := b.withDeadline(context.Background())
	defer cancel()
	_, hasDeadline := ctx.Deadline()
	assert.False(t, hasDeadline)

	assert.Equal(t, [][2]int{{0, 2}, {2, 4}, {4, 5}}, chunk(5, 2))
	assert.Empty(t, chunk(0, 2))
}
