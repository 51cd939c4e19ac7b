// Package bdgr provides a space held in an embedded badger database.
package bdgr

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dgraph-io/badger"
	"github.com/oneconcern/gibsync/pkg/space"
	"github.com/oneconcern/gibsync/pkg/space/local"
	"github.com/oneconcern/gibsync/pkg/space/status"
)

var _ local.Records = &Records{}

// New badger space. The returned space must be closed to release the database.
func New(records *Records, opts ...space.Option) space.Space {
	return space.New(local.New(records), opts...)
}

// Records kept in a badger database, with keys prefixed by area
type Records struct {
	dir   string
	db    *badger.DB
	init  sync.Once
	close sync.Once
}

// NewRecords opens (or creates) the database in dir
func NewRecords(dir string) (*Records, error) {
	r := &Records{dir: dir}
	if err := r.initialize(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Records) initialize() error {
	var err error
	r.init.Do(func() {
		if err = os.MkdirAll(r.dir, 0700); err != nil {
			return
		}
		bopts := badger.DefaultOptions
		bopts.Dir = r.dir
		bopts.ValueDir = r.dir
		r.db, err = badger.Open(bopts)
	})
	return err
}

// Close the database
func (r *Records) Close() error {
	var err error
	r.close.Do(func() {
		if r.db != nil {
			err = r.db.Close()
		}
	})
	return err
}

func (r *Records) String() string {
	return "badger@" + r.dir
}

func prefix(area local.Area) []byte {
	return []byte(area.String() + ":")
}

func recordKey(area local.Area, key string) []byte {
	return append(prefix(area), key...)
}

func rewriteError(err error, area local.Area, key string) error {
	switch err {
	case badger.ErrKeyNotFound:
		return status.ErrNotExists.Wrapf("%s/%s", area, key)
	case badger.ErrEmptyKey:
		return fmt.Errorf("empty key in %s", area)
	default:
		return err
	}
}

// Has a record?
func (r *Records) Has(ctx context.Context, area local.Area, key string) (bool, error) {
	var found bool
	err := r.db.View(func(tx *badger.Txn) error {
		_, err := tx.Get(recordKey(area, key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

// Get a record
func (r *Records) Get(ctx context.Context, area local.Area, key string) ([]byte, error) {
	var value []byte
	err := r.db.View(func(tx *badger.Txn) error {
		item, err := tx.Get(recordKey(area, key))
		if err != nil {
			return rewriteError(err, area, key)
		}
		v, err := item.Value()
		if err != nil {
			return rewriteError(err, area, key)
		}
		// values are only valid within the transaction
		value = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

const (
	conflictDelay   = 10 * time.Millisecond
	conflictRetries = 50
)

// retryConflicts runs an update again as long as it conflicts with a concurrent transaction
func retryConflicts(ctx context.Context, update func() error) error {
	return backoff.Retry(func() error {
		err := update()
		if err == nil || err == badger.ErrConflict {
			return err // retry conflicts
		}
		return backoff.Permanent(err)
	},
		backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(conflictDelay), conflictRetries), ctx),
	)
}

// Put a record
func (r *Records) Put(ctx context.Context, area local.Area, key string, value []byte) error {
	return retryConflicts(ctx, func() error {
		return r.db.Update(func(tx *badger.Txn) error {
			return tx.Set(recordKey(area, key), value)
		})
	})
}

// Delete a record
func (r *Records) Delete(ctx context.Context, area local.Area, key string) error {
	return retryConflicts(ctx, func() error {
		return r.db.Update(func(tx *badger.Txn) error {
			return tx.Delete(recordKey(area, key))
		})
	})
}

// Keys of an area
func (r *Records) Keys(ctx context.Context, area local.Area) ([]string, error) {
	var keys []string
	pref := prefix(area)
	err := r.db.View(func(tx *badger.Txn) error {
		iter := tx.NewIterator(badger.IteratorOptions{
			PrefetchValues: false,
		})
		defer iter.Close()

		for iter.Seek(pref); iter.ValidForPrefix(pref); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			k := iter.Item().Key()
			keys = append(keys, string(k[len(pref):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}
