// Package reconcile applies client change sets to a backend's collections,
// resolving phantom ids across collections, and serves snapshots of them.
package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"github.com/ritza-co/bryntum-backend-guides/internal/schema"
	"github.com/ritza-co/bryntum-backend-guides/internal/store"
)

// Revisions hands out the monotonic revision of a backend.
type Revisions interface {
	Current(ctx context.Context, backend string) (int64, error)
	Next(ctx context.Context, backend string) (int64, error)
}

// Engine serves one backend over one store.
type Engine struct {
	backend   *schema.Backend
	store     store.Store
	order     []*schema.Collection
	log       logr.Logger
	observers Observers
	revisions Revisions
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(log logr.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithObserver adds an observer of committed mutations.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// WithRevisions sets the revision source of revisioned backends.
func WithRevisions(r Revisions) Option {
	return func(e *Engine) { e.revisions = r }
}

// New validates the backend and prepares its processing order.
func New(backend *schema.Backend, st store.Store, opts ...Option) (*Engine, error) {
	if backend == nil || st == nil {
		return nil, errors.New("reconcile: backend and store are required")
	}
	order, err := backend.Order()
	if err != nil {
		return nil, err
	}
	e := &Engine{backend: backend, store: st, order: order, log: logr.Discard()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Backend is the definition the engine serves.
func (e *Engine) Backend() *schema.Backend { return e.backend }

// Store is the store the engine writes to.
func (e *Engine) Store() store.Store { return e.store }

// plannedSet is a decoded change set of one collection.
type plannedSet struct {
	coll    *schema.Collection
	added   []row
	updated []row
	removed []row
}

// plan decodes every change set of the request in processing order. Nothing
// is written when any of them is malformed.
func (e *Engine) plan(req *SyncRequest) ([]plannedSet, error) {
	var sets []plannedSet
	for _, c := range e.order {
		raw, ok := req.Changes[c.Name]
		if !ok || isNull(bytes.TrimSpace(raw)) {
			continue
		}
		var cs ChangeSet
		if err := json.Unmarshal(raw, &cs); err != nil {
			return nil, malformed("%s: %v", c.Name, err)
		}
		set := plannedSet{coll: c}
		for _, p := range cs.Added {
			r, err := decodeRow(c, p)
			if err != nil {
				return nil, err
			}
			set.added = append(set.added, r)
		}
		for _, p := range cs.Updated {
			r, err := decodeRow(c, p)
			if err != nil {
				return nil, err
			}
			set.updated = append(set.updated, r)
		}
		for _, p := range cs.Removed {
			set.removed = append(set.removed, decodeKeyRow(c, p))
		}
		sets = append(sets, set)
	}
	for name := range req.Changes {
		if _, ok := e.backend.Collection(name); !ok {
			e.log.V(1).Info("ignoring unknown collection", "backend", e.backend.Name, "collection", name)
		}
	}
	return sets, nil
}

// Sync applies a batch of change sets. A malformed request returns a nil
// response and an error wrapping ErrMalformed before anything is written. A
// store fault stops the batch and returns the failure envelope with the
// cause; rows applied before the fault stay applied.
func (e *Engine) Sync(ctx context.Context, req *SyncRequest) (*SyncResponse, error) {
	if e.backend.CRUD {
		return nil, errors.Wrapf(ErrUnsupported, "sync on %s", e.backend.Name)
	}
	start := time.Now()
	sets, err := e.plan(req)
	if err != nil {
		return nil, err
	}

	reg := NewRegistry()
	a := &applier{store: e.store, backend: e.backend, reg: reg, log: e.log, observer: e.observers}
	resp := &SyncResponse{Success: true, RequestID: req.RequestID, Rows: map[string][]Mapping{}}
	for _, set := range sets {
		mappings, err := a.applyAdded(ctx, set.coll, set.added)
		if len(mappings) > 0 {
			resp.Rows[set.coll.Name] = mappings
		}
		if err == nil {
			err = a.applyUpdated(ctx, set.coll, set.updated)
		}
		if err == nil {
			err = a.applyRemoved(ctx, set.coll, set.removed)
		}
		if err != nil {
			e.log.Error(err, "sync failed", "backend", e.backend.Name, "collection", set.coll.Name)
			e.observers.BatchFinished(ctx, "sync", time.Since(start), err)
			return Failure(req.RequestID), err
		}
	}

	if e.backend.Revisioned && e.revisions != nil {
		rev, err := e.revisions.Next(ctx, e.backend.Name)
		if err != nil {
			e.log.Error(err, "advance revision", "backend", e.backend.Name)
		} else {
			resp.Revision = &rev
		}
	}
	e.log.Info("sync applied", "backend", e.backend.Name, "collections", len(sets), "phantoms", reg.Len(), "elapsed", time.Since(start).String())
	e.observers.BatchFinished(ctx, "sync", time.Since(start), nil)
	return resp, nil
}
