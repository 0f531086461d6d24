package reconcile

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"github.com/ritza-co/bryntum-backend-guides/internal/schema"
	"github.com/ritza-co/bryntum-backend-guides/internal/store"
	"github.com/ritza-co/bryntum-backend-guides/internal/util"
)

// applier writes decoded change sets to the store. Every row is its own
// store call, so rows written before a failure stay written.
type applier struct {
	store    store.Store
	backend  *schema.Backend
	reg      *Registry
	log      logr.Logger
	observer Observer
}

func (a *applier) table(c *schema.Collection) (store.Table, error) {
	t, err := a.store.Table(c.Name)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", c.Name)
	}
	return t, nil
}

// applyAdded inserts rows and returns the mappings of rows that carried a
// phantom id.
func (a *applier) applyAdded(ctx context.Context, c *schema.Collection, rows []row) ([]Mapping, error) {
	var mappings []Mapping
	for _, r := range rows {
		key, err := a.insert(ctx, c, r)
		if err != nil {
			return mappings, err
		}
		if r.phantom != "" {
			mappings = append(mappings, Mapping{PhantomID: r.phantom, ID: key})
		}
	}
	return mappings, nil
}

// applyUpdated writes the sent fields of rows; rows with an invalid key or
// no stored counterpart are skipped.
func (a *applier) applyUpdated(ctx context.Context, c *schema.Collection, rows []row) error {
	for _, r := range rows {
		if !r.key.Valid() {
			continue
		}
		err := a.update(ctx, c, r)
		if errors.Is(err, store.ErrNotFound) {
			a.log.V(1).Info("skipping update of missing row", "collection", c.Name, "id", r.key.String())
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// applyRemoved deletes rows and whatever cascades from them; missing rows
// are skipped.
func (a *applier) applyRemoved(ctx context.Context, c *schema.Collection, rows []row) error {
	for _, r := range rows {
		if !r.key.Valid() {
			continue
		}
		err := a.remove(ctx, c, r.key)
		if errors.Is(err, store.ErrNotFound) {
			a.log.V(1).Info("skipping removal of missing row", "collection", c.Name, "id", r.key.String())
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// insert stores one added row and registers its phantom id.
func (a *applier) insert(ctx context.Context, c *schema.Collection, r row) (store.Key, error) {
	t, err := a.table(c)
	if err != nil {
		return store.Key{}, err
	}
	rec := store.Record{}
	for _, f := range c.Fields {
		if f.IsRef() {
			if ref, ok := r.refs[f.Name]; ok {
				if key, ok := ref.Resolve(a.reg, f.Ref); ok {
					rec[f.Name] = key.Value()
				} else if !ref.IsNull() {
					a.log.V(1).Info("unresolved reference left unset", "collection", c.Name, "field", f.Name, "ref", ref.String())
				}
			}
			continue
		}
		v, sent := r.Lookup(f.Name)
		switch {
		case f.Required && v == nil:
			rec[f.Name] = f.Kind.Zero()
		case sent:
			rec[f.Name] = v
		case f.Default != nil:
			rec[f.Name] = f.Default
		}
	}

	var key store.Key
	if c.KeyMode == schema.ClientKey {
		key = r.key
		if !key.Valid() {
			key = store.StringKey(util.NewKey())
		}
	}
	key, err = t.Insert(ctx, key, rec)
	if err != nil {
		return store.Key{}, errors.Wrapf(err, "add %s", c.Name)
	}
	if r.phantom != "" {
		a.reg.Register(c.Name, r.phantom, key)
	}
	rec["id"] = key.Value()
	a.observer.RowApplied(ctx, RowEvent{Collection: c.Name, Op: OpAdded, Key: key, Record: rec})
	return key, nil
}

// update writes the sent fields of one row. It returns store.ErrNotFound
// when the row does not exist.
func (a *applier) update(ctx context.Context, c *schema.Collection, r row) error {
	t, err := a.table(c)
	if err != nil {
		return err
	}
	changes := a.changes(c, r)
	if err := t.Update(ctx, r.key, changes); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return errors.Wrapf(err, "update %s %s", c.Name, r.key)
	}
	if len(changes) > 0 {
		a.observer.RowApplied(ctx, RowEvent{Collection: c.Name, Op: OpUpdated, Key: r.key, Record: changes})
	}
	return nil
}

// changes merges a partial row into the set of columns to write. Null only
// clears clearable fields; unresolved references leave the column alone.
func (a *applier) changes(c *schema.Collection, r row) store.Record {
	changes := store.Record{}
	for _, f := range c.Fields {
		if f.IsRef() {
			ref, ok := r.refs[f.Name]
			if !ok {
				continue
			}
			if ref.IsNull() {
				if f.Clearable {
					changes[f.Name] = nil
				}
				continue
			}
			if key, ok := ref.Resolve(a.reg, f.Ref); ok {
				changes[f.Name] = key.Value()
			} else {
				a.log.V(1).Info("unresolved reference left unchanged", "collection", c.Name, "field", f.Name, "ref", ref.String())
			}
			continue
		}
		v, sent := r.Lookup(f.Name)
		if !sent || (v == nil && !f.Clearable) {
			continue
		}
		changes[f.Name] = v
	}
	for _, inv := range c.Invalidations {
		if _, written := changes[inv.Target]; written {
			continue
		}
		for _, trigger := range inv.Triggers {
			if v, written := changes[trigger]; written && v != nil {
				changes[inv.Target] = nil
				break
			}
		}
	}
	return changes
}

// remove deletes one row and sweeps its dependents. It returns
// store.ErrNotFound when the row does not exist.
func (a *applier) remove(ctx context.Context, c *schema.Collection, key store.Key) error {
	t, err := a.table(c)
	if err != nil {
		return err
	}
	if err := t.Delete(ctx, key); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return errors.Wrapf(err, "remove %s %s", c.Name, key)
	}
	a.observer.RowApplied(ctx, RowEvent{Collection: c.Name, Op: OpRemoved, Key: key})
	return a.cascade(ctx, c, key)
}

// cascade deletes the rows whose cascading references point at key,
// recursing through hierarchies and their links.
func (a *applier) cascade(ctx context.Context, c *schema.Collection, key store.Key) error {
	for _, dep := range a.backend.Dependents(c.Name) {
		t, err := a.table(dep.Collection)
		if err != nil {
			return err
		}
		keys, err := t.KeysWhere(ctx, dep.Field.Name, key.Value())
		if err != nil {
			return errors.Wrapf(err, "cascade %s.%s", dep.Collection.Name, dep.Field.Name)
		}
		for _, k := range keys {
			err := t.Delete(ctx, k)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return errors.Wrapf(err, "cascade %s %s", dep.Collection.Name, k)
			}
			a.observer.RowApplied(ctx, RowEvent{Collection: dep.Collection.Name, Op: OpCascaded, Key: k})
			if err := a.cascade(ctx, dep.Collection, k); err != nil {
				return err
			}
		}
	}
	return nil
}
