package ibgib

import (
	stdjson "encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGib(t *testing.T) {
	for _, tc := range []struct {
		name string
		node Node
		gib  string
	}{
		{
			name: "id only",
			node: Node{ID: "foo"},
			gib:  "1062769A6A315B57ED0B0F4905AE6ED823B3753902EDE4EFCD32618ED75880FB",
		},
		{
			name: "data and relations",
			node: Node{
				ID:        "foo",
				Data:      map[string]interface{}{"b": "two", "a": 1},
				Relations: map[string][]string{RelPast: {"x^Y"}},
			},
			gib: "0C2839C8D6026BBEA6D0B6803148538F6C01DE8A542C9CCC60A1FE9B83D71643",
		},
		{
			name: "empty relations are not hashed",
			node: Node{
				ID:        "foo",
				Data:      map[string]interface{}{"a": 1, "b": "two"},
				Relations: map[string][]string{RelPast: {}},
			},
			gib: "2AA5A4B22B5641FDA038E5367CA87D96AC217DC10561299F817F907CC73E42CC",
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			gib, err := Gib(&tc.node)
			require.NoError(t, err)
			assert.Equal(t, tc.gib, gib)
		})
	}
}

func TestVerify(t *testing.T) {
	n, err := Seal(&Node{ID: "comment", Data: map[string]interface{}{"text": "hello"}})
	require.NoError(t, err)
	require.NoError(t, Verify(n))

	tampered := n.Clone()
	tampered.Data["text"] = "bye"
	require.Error(t, Verify(tampered))

	require.NoError(t, Verify(NewPrimitive("ib")))
	require.Error(t, Verify(&Node{ContentHash: "ABC"}))
}

func TestAddressStableAcrossEncoding(t *testing.T) {
	n, err := Seal(&Node{
		ID:        "comment",
		Data:      map[string]interface{}{"n": 3, "nested": map[string]interface{}{"z": true, "a": []string{"x"}}},
		Relations: map[string][]string{RelPast: {"comment^AAA"}, RelTjp: {"comment^TJP"}},
	})
	require.NoError(t, err)

	buf, err := Encode(n)
	require.NoError(t, err)
	back, err := Decode(buf)
	require.NoError(t, err)

	assert.Equal(t, n.Addr(), back.Addr())
	require.NoError(t, Verify(back), "decoded numbers must hash identically")
}

func TestParseAddr(t *testing.T) {
	id, gib := ParseAddr("comment a^b^ABC")
	assert.Equal(t, "comment a^b", id)
	assert.Equal(t, "ABC", gib)

	id, gib = ParseAddr("nodelimiter")
	assert.Equal(t, "nodelimiter", id)
	assert.Empty(t, gib)

	assert.True(t, IsPrimitiveAddr(RootAddr))
	assert.False(t, IsPrimitiveAddr("x^ABC"))
}

func TestBinAddr(t *testing.T) {
	addr := BinAddr("abc123", "png")
	assert.Equal(t, "bin.png^abc123", addr)
	assert.True(t, IsBinAddr(addr))

	h, ext, ok := ParseBinAddr(addr)
	require.True(t, ok)
	assert.Equal(t, "abc123", h)
	assert.Equal(t, "png", ext)

	_, _, ok = ParseBinAddr("comment^ABC")
	assert.False(t, ok)

	assert.Equal(t, "abc123.png", BinFilename("abc123", "png"))
	assert.Equal(t, "abc123", BinFilename("abc123", ""))
}

func TestTimelineHelpers(t *testing.T) {
	n := &Node{
		ID:        "x",
		Data:      map[string]interface{}{DataCounter: float64(4), DataIsTjp: true},
		Relations: map[string][]string{RelPast: {"x^1", "x^2"}, RelTjp: {"x^0"}},
	}
	c, ok := Counter(n)
	require.True(t, ok)
	assert.EqualValues(t, 4, c)
	assert.True(t, IsTjp(n))
	assert.True(t, InPast(n, "x^2"))
	assert.False(t, InPast(n, "x^3"))
	assert.Equal(t, []string{"x^0"}, TjpAddrs(n))

	_, ok = Counter(&Node{Data: map[string]interface{}{DataCounter: 1.5}})
	assert.False(t, ok)
	_, ok = Counter(&Node{Data: map[string]interface{}{DataCounter: "7"}})
	assert.False(t, ok)
	_, ok = Counter(&Node{Data: map[string]interface{}{DataCounter: float64(-2)}})
	assert.False(t, ok, "negative counters are not trusted")
	_, ok = Counter(&Node{Data: map[string]interface{}{DataCounter: stdjson.Number("-1")}})
	assert.False(t, ok)

	decoded, err := Decode([]byte(`{"ib":"x","gib":"gib","data":{"n":12}}`))
	require.NoError(t, err)
	c, ok = Counter(decoded)
	require.True(t, ok)
	assert.EqualValues(t, 12, c)
}

func TestNewWitnessArg(t *testing.T) {
	now := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	arg, err := NewWitnessArg(now, "get", map[string]interface{}{"cmd": "get"})
	require.NoError(t, err)

	assert.Equal(t, "witness_arg get", arg.ID)
	assert.Equal(t, "2021-03-04T05:06:07Z", arg.Data[DataTimestamp])
	assert.Equal(t, []string{"witness_arg^gib"}, arg.Relations[RelAncestor])
	require.NoError(t, Verify(arg))

	again, err := NewWitnessArg(now, "get", map[string]interface{}{"cmd": "get"})
	require.NoError(t, err)
	assert.Equal(t, arg.Addr(), again.Addr(), "same clock reading yields the same request identity")

	res, err := NewWitnessResult(now.Add(time.Second), "", nil)
	require.NoError(t, err)
	assert.Equal(t, WitnessResultID, res.ID)
}

func TestDigests(t *testing.T) {
	assert.Empty(t, HexDigest(SHA256, ""))
	assert.Equal(t, "2c26b46b68ffc68ff99b453c1d30413413422d706483bfa0f98a5e886266e7ae", HexDigest(nil, "foo"))
	assert.Len(t, HexDigestBytes(Blake2b, []byte("foo")), 64)
	assert.NotEqual(t, HexDigestBytes(SHA256, []byte("foo")), HexDigestBytes(Blake2b, []byte("foo")))
}
