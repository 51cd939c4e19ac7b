// Copyright © 2018 One Concern

// Package localfs provides a space held on a file system.
//
// Records are laid out as {base}/{subPath}/{area}/{filename}, with one of
// the "ibgibs", "meta", "bin" and "dna" areas. Nodes are stored as
// "<address>.json" and binary payloads as "<hash>[.<ext>]".
package localfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/oneconcern/gibsync/pkg/errors"
	"github.com/oneconcern/gibsync/pkg/space"
	"github.com/oneconcern/gibsync/pkg/space/local"
	"github.com/oneconcern/gibsync/pkg/space/status"
	"github.com/segmentio/ksuid"
	"github.com/spf13/afero"
)

const (
	// DefaultBaseDir is the base directory of spaces
	DefaultBaseDir = "ibgib"

	// DefaultSubPath is the directory of the default space
	DefaultSubPath = "default"

	// DefaultCacheSize is the number of records kept in the read cache
	DefaultCacheSize = 256

	nodeExt   = ".json"
	tmpPrefix = "."
)

var _ local.Records = &Records{}

// ErrUnsafeKey reports a key that would escape its area's directory once used as a file name
var ErrUnsafeKey = errors.New("key is not a safe file name")

func checkKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, "/\\\x00") {
		return ErrUnsafeKey.Wrapf("%q", key)
	}
	return nil
}

// New file system space
func New(records *Records, opts ...space.Option) space.Space {
	return space.New(local.New(records), opts...)
}

// Option for file system records
type Option func(*Records)

// BaseDir sets the base directory
func BaseDir(dir string) Option {
	return func(r *Records) {
		if dir != "" {
			r.baseDir = dir
		}
	}
}

// SubPath sets the space directory below the base directory
func SubPath(sub string) Option {
	return func(r *Records) {
		if sub != "" {
			r.subPath = sub
		}
	}
}

// CacheSize sets the number of records kept in the read cache. Zero disables the cache.
func CacheSize(size int) Option {
	return func(r *Records) {
		r.cacheSize = size
	}
}

// Perms sets the permissions of created directories and files
func Perms(dir, file os.FileMode) Option {
	return func(r *Records) {
		r.dirPerm = dir
		r.filePerm = file
	}
}

// Records kept on a file system
type Records struct {
	fs        afero.Fs
	baseDir   string
	subPath   string
	dirPerm   os.FileMode
	filePerm  os.FileMode
	cacheSize int
	cache     *lru.Cache

	// ensured directories, by path and permissions
	dirs sync.Map
}

// NewRecords on a file system. A nil fs means the OS file system.
func NewRecords(fs afero.Fs, opts ...Option) *Records {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	r := &Records{
		fs:        fs,
		baseDir:   DefaultBaseDir,
		subPath:   DefaultSubPath,
		dirPerm:   0700,
		filePerm:  0600,
		cacheSize: DefaultCacheSize,
	}
	for _, apply := range opts {
		apply(r)
	}
	if r.cacheSize > 0 {
		r.cache, _ = lru.New(r.cacheSize)
	}
	return r
}

func (r *Records) dir(area local.Area) string {
	return filepath.Join(r.baseDir, r.subPath, area.String())
}

func filename(area local.Area, key string) string {
	if area == local.AreaBinary {
		return key
	}
	return key + nodeExt
}

func (r *Records) path(area local.Area, key string) string {
	return filepath.Join(r.dir(area), filename(area, key))
}

func cacheKey(area local.Area, key string) string {
	return area.String() + "/" + key
}

// ensureDirs creates a directory once per path and permissions
func (r *Records) ensureDirs(dir string, perm os.FileMode) error {
	memo := fmt.Sprintf("%s|%o", dir, perm)
	if _, ok := r.dirs.Load(memo); ok {
		return nil
	}
	if err := r.fs.MkdirAll(dir, perm); err != nil {
		return fmt.Errorf("ensuring directories for %q: %v", dir, err)
	}
	r.dirs.Store(memo, true)
	return nil
}

// Has a record?
func (r *Records) Has(ctx context.Context, area local.Area, key string) (bool, error) {
	if checkKey(key) != nil {
		return false, nil
	}
	if r.cache != nil && r.cache.Contains(cacheKey(area, key)) {
		return true, nil
	}
	fi, err := r.fs.Stat(r.path(area, key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !fi.IsDir(), nil
}

// Get a record
func (r *Records) Get(ctx context.Context, area local.Area, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	ck := cacheKey(area, key)
	if r.cache != nil {
		if v, ok := r.cache.Get(ck); ok {
			return append([]byte(nil), v.([]byte)...), nil
		}
	}
	buf, err := afero.ReadFile(r.fs, r.path(area, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, status.ErrNotExists.Wrapf("%s/%s", area, key)
		}
		return nil, fmt.Errorf("read record for %q: %v", key, err)
	}
	if r.cache != nil {
		r.cache.Add(ck, append([]byte(nil), buf...))
	}
	return buf, nil
}

// Put a record, atomically replacing any previous version
func (r *Records) Put(ctx context.Context, area local.Area, key string, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	dir := r.dir(area)
	if err := r.ensureDirs(dir, r.dirPerm); err != nil {
		return err
	}
	final := r.path(area, key)
	tmp := filepath.Join(dir, tmpPrefix+filename(area, key)+"."+ksuid.New().String())
	if err := afero.WriteFile(r.fs, tmp, value, r.filePerm); err != nil {
		return fmt.Errorf("write record for %q: %v", key, err)
	}
	if err := r.fs.Rename(tmp, final); err != nil {
		_ = r.fs.Remove(tmp)
		return fmt.Errorf("commit record for %q: %v", key, err)
	}
	if r.cache != nil {
		r.cache.Add(cacheKey(area, key), append([]byte(nil), value...))
	}
	return nil
}

// Delete a record
func (r *Records) Delete(ctx context.Context, area local.Area, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if r.cache != nil {
		r.cache.Remove(cacheKey(area, key))
	}
	if err := r.fs.Remove(r.path(area, key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %q: %v", key, err)
	}
	return nil
}

// Keys of an area. The directory scan stops when ctx is done.
func (r *Records) Keys(ctx context.Context, area local.Area) ([]string, error) {
	infos, err := afero.ReadDir(r.fs, r.dir(area))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	keys := make([]string, 0, len(infos))
	for _, fi := range infos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := fi.Name()
		if fi.IsDir() || strings.HasPrefix(name, tmpPrefix) {
			continue
		}
		if area != local.AreaBinary {
			if !strings.HasSuffix(name, nodeExt) {
				continue
			}
			name = strings.TrimSuffix(name, nodeExt)
		}
		keys = append(keys, name)
	}
	return keys, nil
}

func (r *Records) String() string {
	const localfs = "localfs"
	switch fs := r.fs.(type) {
	case *afero.BasePathFs:
		pp, err := fs.RealPath(r.baseDir)
		if err != nil {
			return localfs
		}
		return localfs + "@" + filepath.Join(pp, r.subPath)
	default:
		return localfs + "@" + filepath.Join(r.baseDir, r.subPath)
	}
}
