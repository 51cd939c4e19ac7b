// Package local implements the command semantics shared by spaces held on
// the local device, over a simple record store.
package local

import (
	"context"
)

// Area partitions the records of a local space
type Area int

// Areas of a local space
const (
	// AreaRegular holds ordinary nodes
	AreaRegular Area = iota
	// AreaMeta holds frequently changing, configuration-like nodes
	AreaMeta
	// AreaBinary holds raw byte payloads, keyed by hash and extension
	AreaBinary
	// AreaDna holds transform provenance records
	AreaDna
)

// String is the area's directory name
func (a Area) String() string {
	switch a {
	case AreaMeta:
		return "meta"
	case AreaBinary:
		return "bin"
	case AreaDna:
		return "dna"
	default:
		return "ibgibs"
	}
}

// Areas lists every area
var Areas = []Area{AreaRegular, AreaMeta, AreaBinary, AreaDna}

// Records implementations know how to keep serialized records by area and key.
//
// Get returns status.ErrNotExists for missing records. Delete of a missing
// record is not an error.
type Records interface {
	String() string
	Has(ctx context.Context, area Area, key string) (bool, error)
	Get(ctx context.Context, area Area, key string) ([]byte, error)
	Put(ctx context.Context, area Area, key string, value []byte) error
	Delete(ctx context.Context, area Area, key string) error
	Keys(ctx context.Context, area Area) ([]string, error)
}
