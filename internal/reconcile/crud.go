package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/ritza-co/bryntum-backend-guides/internal/schema"
	"github.com/ritza-co/bryntum-backend-guides/internal/store"
)

// The CRUD calls serve backends whose client edits one collection through
// separate read, create, update and delete requests.

func (e *Engine) crudCollection(op, collection string) (*schema.Collection, error) {
	if !e.backend.CRUD {
		return nil, errors.Wrapf(ErrUnsupported, "%s on %s", op, e.backend.Name)
	}
	c, ok := e.backend.Collection(collection)
	if !ok {
		return nil, errors.Wrapf(ErrUnsupported, "%s on unknown collection %s", op, collection)
	}
	return c, nil
}

func (e *Engine) crudApplier() *applier {
	return &applier{store: e.store, backend: e.backend, reg: NewRegistry(), log: e.log, observer: e.observers}
}

// Read returns every row of the collection.
func (e *Engine) Read(ctx context.Context, collection string) ([]map[string]any, error) {
	c, err := e.crudCollection("read", collection)
	if err != nil {
		return nil, err
	}
	rows, err := e.loadCollection(ctx, c)
	if err != nil {
		return nil, &CRUDError{Op: "read", Collection: c.Name, Err: err}
	}
	return rows, nil
}

// Create inserts rows, ignoring any client ids, and returns them as stored.
func (e *Engine) Create(ctx context.Context, collection string, data []Patch) ([]map[string]any, error) {
	c, err := e.crudCollection("create", collection)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, noData(c)
	}
	rows, err := decodeAll(c, data)
	if err != nil {
		return nil, err
	}
	a := e.crudApplier()
	created := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		if c.KeyMode == schema.ServerKey {
			r.key = store.Key{}
		}
		key, err := a.insert(ctx, c, r)
		if err != nil {
			return created, &CRUDError{Op: "create", Collection: c.Name, Err: err}
		}
		rec, err := e.find(ctx, c, key)
		if err != nil {
			return created, &CRUDError{Op: "create", Collection: c.Name, Err: err}
		}
		created = append(created, rec)
	}
	return created, nil
}

// Update writes partial rows. Rows without a valid id are skipped; an id
// with no stored row fails with *MissingRowError.
func (e *Engine) Update(ctx context.Context, collection string, data []Patch) ([]map[string]any, error) {
	c, err := e.crudCollection("update", collection)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, noData(c)
	}
	rows, err := decodeAll(c, data)
	if err != nil {
		return nil, err
	}
	a := e.crudApplier()
	updated := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		if !r.key.Valid() {
			continue
		}
		err := a.update(ctx, c, r)
		if errors.Is(err, store.ErrNotFound) {
			return updated, &MissingRowError{Singular: c.Singular, Key: r.key}
		}
		if err != nil {
			return updated, &CRUDError{Op: "update", Collection: c.Name, Err: err}
		}
		rec, err := e.find(ctx, c, r.key)
		if err != nil {
			return updated, &CRUDError{Op: "update", Collection: c.Name, Err: err}
		}
		updated = append(updated, rec)
	}
	return updated, nil
}

// Delete removes the rows with the given ids. Unknown and invalid ids are
// ignored.
func (e *Engine) Delete(ctx context.Context, collection string, ids []json.RawMessage) error {
	c, err := e.crudCollection("delete", collection)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return &InputError{Message: fmt.Sprintf("No %s ids provided", strings.ToLower(c.Singular))}
	}
	rows := make([]row, 0, len(ids))
	for _, raw := range ids {
		rows = append(rows, row{key: parseKey(c.KeyMode, raw)})
	}
	if err := e.crudApplier().applyRemoved(ctx, c, rows); err != nil {
		return &CRUDError{Op: "delete", Collection: c.Name, Err: err}
	}
	return nil
}

func (e *Engine) find(ctx context.Context, c *schema.Collection, key store.Key) (map[string]any, error) {
	t, err := e.store.Table(c.Name)
	if err != nil {
		return nil, err
	}
	rec, err := t.Find(ctx, key)
	if err != nil {
		return nil, err
	}
	return encodeRecord(c, rec), nil
}

func decodeAll(c *schema.Collection, data []Patch) ([]row, error) {
	rows := make([]row, 0, len(data))
	for _, p := range data {
		r, err := decodeRow(c, p)
		if err != nil {
			return nil, err
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func noData(c *schema.Collection) error {
	return &InputError{Message: fmt.Sprintf("No %s data provided", c.Name)}
}
