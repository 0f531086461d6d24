package store

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/ritza-co/bryntum-backend-guides/internal/schema"
)

// Memory keeps every table in process memory. Rows scan in insertion order.
type Memory struct {
	mu     sync.RWMutex
	tables map[string]*memoryTable
}

type memoryTable struct {
	mu    *sync.RWMutex
	coll  *schema.Collection
	rows  map[Key]Record
	order []Key
	next  int64
}

// NewMemory creates empty tables for every collection of the backend.
func NewMemory(backend *schema.Backend) *Memory {
	m := &Memory{tables: make(map[string]*memoryTable, len(backend.Collections))}
	for _, c := range backend.Collections {
		m.tables[c.Name] = &memoryTable{mu: &m.mu, coll: c, rows: make(map[Key]Record)}
	}
	return m
}

func (m *Memory) Table(collection string) (Table, error) {
	t, ok := m.tables[collection]
	if !ok {
		return nil, errors.Errorf("unknown collection %q", collection)
	}
	return t, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

func (t *memoryTable) Find(_ context.Context, key Key) (Record, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.rows[key]
	if !ok {
		return nil, ErrNotFound
	}
	return row.Clone(), nil
}

func (t *memoryTable) Insert(_ context.Context, key Key, rec Record) (Key, error) {
	if err := t.checkFields(rec); err != nil {
		return Key{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !key.Valid() {
		if t.coll.KeyMode == schema.ClientKey {
			return Key{}, errors.Errorf("%s: insert requires a key", t.coll.Name)
		}
		t.next++
		key = IntKey(t.next)
	} else if _, exists := t.rows[key]; exists {
		return Key{}, errors.Errorf("%s: duplicate key %s", t.coll.Name, key)
	} else if !key.IsString() && key.Int() > t.next {
		t.next = key.Int()
	}
	row := make(Record, len(t.coll.Fields)+1)
	for _, f := range t.coll.Fields {
		row[f.Name] = rec[f.Name]
	}
	row["id"] = key.Value()
	t.rows[key] = row
	t.order = append(t.order, key)
	return key, nil
}

func (t *memoryTable) Update(_ context.Context, key Key, changes Record) error {
	if err := t.checkFields(changes); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	row, ok := t.rows[key]
	if !ok {
		return ErrNotFound
	}
	for name, v := range changes {
		row[name] = v
	}
	return nil
}

func (t *memoryTable) Delete(_ context.Context, key Key) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[key]; !ok {
		return ErrNotFound
	}
	delete(t.rows, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return nil
}

func (t *memoryTable) Scan(context.Context) ([]Record, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Record, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, t.rows[k].Clone())
	}
	return out, nil
}

func (t *memoryTable) KeysWhere(_ context.Context, field string, value any) ([]Key, error) {
	if _, ok := t.coll.Field(field); !ok {
		return nil, errors.Errorf("%s: unknown field %q", t.coll.Name, field)
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	var keys []Key
	for _, k := range t.order {
		if sameValue(t.rows[k][field], value) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (t *memoryTable) checkFields(rec Record) error {
	for name := range rec {
		if _, ok := t.coll.Field(name); !ok {
			return errors.Errorf("%s: unknown field %q", t.coll.Name, name)
		}
	}
	return nil
}

func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case json.RawMessage:
		y, ok := b.(json.RawMessage)
		return ok && bytes.Equal(x, y)
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	}
	if _, ok := b.(json.RawMessage); ok {
		return false
	}
	return a == b
}
