// Package memory provides a space held in process memory.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/oneconcern/gibsync/pkg/space"
	"github.com/oneconcern/gibsync/pkg/space/local"
	"github.com/oneconcern/gibsync/pkg/space/status"
)

var _ local.Records = &Records{}

// New in-memory space
func New(opts ...space.Option) space.Space {
	return space.New(local.New(NewRecords()), opts...)
}

// Records keeps serialized records in maps, one per area.
//
// Values are copied in and out, so callers can't alter stored records.
type Records struct {
	mu    sync.RWMutex
	areas map[local.Area]map[string][]byte
}

// NewRecords creates empty in-memory records
func NewRecords() *Records {
	r := &Records{areas: make(map[local.Area]map[string][]byte, len(local.Areas))}
	for _, a := range local.Areas {
		r.areas[a] = make(map[string][]byte)
	}
	return r
}

func (r *Records) String() string {
	return "memory"
}

// Has a record?
func (r *Records) Has(_ context.Context, area local.Area, key string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.areas[area][key]
	return ok, nil
}

// Get a copy of a record
func (r *Records) Get(_ context.Context, area local.Area, key string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.areas[area][key]
	if !ok {
		return nil, status.ErrNotExists.Wrapf("%s/%s", area, key)
	}
	return append([]byte(nil), v...), nil
}

// Put a copy of a record
func (r *Records) Put(_ context.Context, area local.Area, key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.areas[area][key] = append([]byte(nil), value...)
	return nil
}

// Delete a record
func (r *Records) Delete(_ context.Context, area local.Area, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.areas[area], key)
	return nil
}

// Keys of an area, sorted
func (r *Records) Keys(_ context.Context, area local.Area) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.areas[area]))
	for k := range r.areas[area] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
