// Copyright © 2018 One Concern

package localfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/oneconcern/gibsync/pkg/errors"
	"github.com/oneconcern/gibsync/pkg/ibgib"
	"github.com/oneconcern/gibsync/pkg/space"
	"github.com/oneconcern/gibsync/pkg/space/local"
	"github.com/oneconcern/gibsync/pkg/space/spacetest"
	"github.com/oneconcern/gibsync/pkg/space/status"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRecords(t testing.TB, opts ...Option) (*Records, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	return NewRecords(fs, append([]Option{SubPath("test")}, opts...)...), fs
}

func TestConformance(t *testing.T) {
	spacetest.Run(t, func(t testing.TB) (space.Space, func()) {
		r, _ := setupRecords(t)
		return New(r, space.Clock(spacetest.Clock())), func() {}
	})
}

func TestConformanceWithoutCache(t *testing.T) {
	spacetest.Run(t, func(t testing.TB) (space.Space, func()) {
		r, _ := setupRecords(t, CacheSize(0))
		return New(r, space.Clock(spacetest.Clock())), func() {}
	})
}

func TestLayout(t *testing.T) {
	ctx := context.Background()
	clk := spacetest.Clock()
	r, fs := setupRecords(t)
	s := New(r, space.Clock(clk))

	n := spacetest.Node(t, "comment", map[string]interface{}{"text": "hi"}, nil)
	_, err := space.Put(ctx, s, clk, space.Options{}, n)
	require.NoError(t, err)
	_, err = space.Put(ctx, s, clk, space.Options{IsMeta: true}, spacetest.Node(t, "config", nil, nil))
	require.NoError(t, err)

	data := []byte("raw")
	binHash := ibgib.HexDigestBytes(nil, data)
	_, err = space.Call(ctx, s, clk, space.Options{Cmd: space.CmdPut, BinHash: binHash, BinExt: "txt"}, nil, data)
	require.NoError(t, err)

	exists, err := afero.Exists(fs, filepath.Join("ibgib", "test", "ibgibs", n.Addr()+".json"))
	require.NoError(t, err)
	assert.True(t, exists)

	infos, err := afero.ReadDir(fs, filepath.Join("ibgib", "test", "meta"))
	require.NoError(t, err)
	assert.Len(t, infos, 1)

	exists, err = afero.Exists(fs, filepath.Join("ibgib", "test", "bin", binHash+".txt"))
	require.NoError(t, err)
	assert.True(t, exists)

	for _, area := range []string{"ibgibs", "meta", "bin"} {
		infos, err := afero.ReadDir(fs, filepath.Join("ibgib", "test", area))
		require.NoError(t, err)
		for _, fi := range infos {
			assert.NotContains(t, fi.Name(), ksuidTmpMarker(n), "no temp file left behind")
		}
	}
}

// ksuidTmpMarker is the prefix temp files of a node would carry
func ksuidTmpMarker(n *ibgib.Node) string {
	return tmpPrefix + n.Addr() + nodeExt + "."
}

func TestPersistedFields(t *testing.T) {
	ctx := context.Background()
	r, fs := setupRecords(t)
	n := spacetest.Node(t, "comment", map[string]interface{}{"text": "hi"}, map[string][]string{"past": {"comment^ABC"}})
	buf, err := ibgib.Encode(n)
	require.NoError(t, err)
	require.NoError(t, r.Put(ctx, local.AreaRegular, n.Addr(), buf))

	raw, err := afero.ReadFile(fs, r.path(local.AreaRegular, n.Addr()))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ib":"comment","gib":"`+n.ContentHash+`","data":{"text":"hi"},"rel8ns":{"past":["comment^ABC"]}}`, string(raw))
}

func TestEnsureDirsMemoized(t *testing.T) {
	r, fs := setupRecords(t)
	dir := r.dir(local.AreaRegular)
	require.NoError(t, r.ensureDirs(dir, 0700))

	// a removed directory is not recreated: existence is memoized per path and permissions
	require.NoError(t, fs.RemoveAll(dir))
	require.NoError(t, r.ensureDirs(dir, 0700))
	exists, _ := afero.DirExists(fs, dir)
	assert.False(t, exists)

	require.NoError(t, r.ensureDirs(dir, 0750))
	exists, _ = afero.DirExists(fs, dir)
	assert.True(t, exists)
}

func TestCorruptedRecord(t *testing.T) {
	ctx := context.Background()
	clk := spacetest.Clock()
	r, fs := setupRecords(t, CacheSize(0))
	s := New(r, space.Clock(clk))

	n := spacetest.Node(t, "comment", map[string]interface{}{"text": "hi"}, nil)
	_, err := space.Put(ctx, s, clk, space.Options{}, n)
	require.NoError(t, err)

	require.NoError(t, afero.WriteFile(fs, r.path(local.AreaRegular, n.Addr()), []byte(`{"ib":"comment","gib":"`+n.ContentHash+`","data":{"text":"bye"}}`), 0600))

	got, err := space.Get(ctx, s, clk, space.Options{Addrs: []string{n.Addr()}})
	require.NoError(t, err)
	assert.False(t, got.Data.Success)
	assert.Equal(t, []string{n.Addr()}, got.Data.AddrsErrored)
	assert.Empty(t, got.Nodes)
}

func TestRecordsMissing(t *testing.T) {
	ctx := context.Background()
	r, _ := setupRecords(t)

	_, err := r.Get(ctx, local.AreaDna, "nope")
	require.True(t, errors.Is(err, status.ErrNotExists))

	keys, err := r.Keys(ctx, local.AreaDna)
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.NoError(t, r.Delete(ctx, local.AreaDna, "nope"))
}

func TestKeysCancelled(t *testing.T) {
	r, _ := setupRecords(t)
	require.NoError(t, r.Put(context.Background(), local.AreaRegular, "a^B", []byte("{}")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Keys(ctx, local.AreaRegular)
	require.Equal(t, context.Canceled, err)
}

func TestString(t *testing.T) {
	r, _ := setupRecords(t)
	assert.Equal(t, "localfs@"+filepath.Join("ibgib", "test"), r.String())

	base := NewRecords(afero.NewBasePathFs(afero.NewMemMapFs(), string(os.PathSeparator)+"data"), SubPath("x"))
	assert.Contains(t, base.String(), "localfs@")
}

func TestUnsafeKeys(t *testing.T) {
	ctx := context.Background()
	clk := spacetest.Clock()
	r, fs := setupRecords(t)
	s := New(r, space.Clock(clk))

	for _, id := range []string{"../../../outside/evil", "dir/comment", `dir\comment`} {
		n := spacetest.Node(t, id, map[string]interface{}{"text": "hi"}, nil)
		res, err := space.Put(ctx, s, clk, space.Options{}, n)
		require.NoError(t, err)
		assert.False(t, res.Data.Success, id)
		assert.Equal(t, []string{n.Addr()}, res.Data.AddrsErrored, id)

		got, err := space.Get(ctx, s, clk, space.Options{Addrs: []string{n.Addr()}})
		require.NoError(t, err)
		assert.Empty(t, got.Nodes, id)
	}

	exists, err := afero.DirExists(fs, "outside")
	require.NoError(t, err)
	assert.False(t, exists, "nothing written outside the space's directories")
	exists, err = afero.DirExists(fs, filepath.Join("ibgib", "test", "ibgibs", "dir"))
	require.NoError(t, err)
	assert.False(t, exists)

	for _, key := range []string{"", ".", "..", "a/b"} {
		assert.True(t, errors.Is(r.Put(ctx, local.AreaBinary, key, []byte("x")), ErrUnsafeKey), "%q", key)
		has, err := r.Has(ctx, local.AreaBinary, key)
		require.NoError(t, err)
		assert.False(t, has)
	}
}
