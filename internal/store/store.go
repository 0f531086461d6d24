// Package store persists the rows of synchronized collections. A Store hands
// out one Table per collection; every Table call commits on its own.
package store

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when no row has the requested key.
var ErrNotFound = errors.New("record not found")

// Record is one row keyed by wire field name. Values use the canonical types
// of their schema kind; nil is NULL. Rows read back carry their key under "id".
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Key returns the row's key from its "id" field.
func (r Record) Key() Key {
	k, _ := KeyOf(r["id"])
	return k
}

// Table is a persistent collection with a primary key.
type Table interface {
	// Find returns the row with key, or ErrNotFound.
	Find(ctx context.Context, key Key) (Record, error)
	// Insert stores rec. A zero key lets the store assign an integer key.
	Insert(ctx context.Context, key Key, rec Record) (Key, error)
	// Update writes only the fields present in changes, or returns ErrNotFound.
	Update(ctx context.Context, key Key, changes Record) error
	// Delete removes the row with key, or returns ErrNotFound.
	Delete(ctx context.Context, key Key) error
	// Scan returns every row.
	Scan(ctx context.Context) ([]Record, error)
	// KeysWhere returns the keys of rows whose field equals value.
	KeysWhere(ctx context.Context, field string, value any) ([]Key, error)
}

// Store opens the tables of one backend.
type Store interface {
	Table(collection string) (Table, error)
	Ping(ctx context.Context) error
	Close() error
}
