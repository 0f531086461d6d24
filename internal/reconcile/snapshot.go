package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ritza-co/bryntum-backend-guides/internal/schema"
	"github.com/ritza-co/bryntum-backend-guides/internal/store"
)

// Load reads every collection of the backend. Collections are read
// concurrently; the first failure is returned as a *LoadError.
func (e *Engine) Load(ctx context.Context, requestID json.RawMessage) (*Snapshot, error) {
	start := time.Now()
	blocks := make([]Block, len(e.backend.Collections))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range e.backend.Collections {
		g.Go(func() error {
			rows, err := e.loadCollection(gctx, c)
			if err != nil {
				return &LoadError{Collection: c.Name, Err: err}
			}
			blocks[i] = Block{Collection: c.Name, Rows: rows}
			if e.backend.Totals {
				total := len(rows)
				blocks[i].Total = &total
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.log.Error(err, "load failed", "backend", e.backend.Name)
		e.observers.BatchFinished(ctx, "load", time.Since(start), err)
		return nil, err
	}

	snap := &Snapshot{RequestID: requestID, Blocks: blocks}
	if e.backend.Revisioned && e.revisions != nil {
		rev, err := e.revisions.Current(ctx, e.backend.Name)
		if err != nil {
			e.log.Error(err, "read revision", "backend", e.backend.Name)
		} else {
			snap.Revision = &rev
		}
	}
	e.observers.BatchFinished(ctx, "load", time.Since(start), nil)
	return snap, nil
}

// Rows returns the encoded rows of one collection in snapshot order.
func (e *Engine) Rows(ctx context.Context, collection string) ([]map[string]any, error) {
	c, ok := e.backend.Collection(collection)
	if !ok {
		return nil, &LoadError{Collection: collection, Err: store.ErrNotFound}
	}
	rows, err := e.loadCollection(ctx, c)
	if err != nil {
		return nil, &LoadError{Collection: c.Name, Err: err}
	}
	return rows, nil
}

func (e *Engine) loadCollection(ctx context.Context, c *schema.Collection) ([]map[string]any, error) {
	t, err := e.store.Table(c.Name)
	if err != nil {
		return nil, err
	}
	recs, err := t.Scan(ctx)
	if err != nil {
		return nil, err
	}
	if len(c.OrderBy) > 0 {
		sort.SliceStable(recs, func(i, j int) bool {
			for _, name := range c.OrderBy {
				if n := compareValues(recs[i][name], recs[j][name]); n != 0 {
					return n < 0
				}
			}
			return false
		})
	}
	rows := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, encodeRecord(c, rec))
	}
	return rows, nil
}

// encodeRecord converts a stored row to its wire form.
func encodeRecord(c *schema.Collection, rec store.Record) map[string]any {
	out := make(map[string]any, len(c.Fields)+1)
	out["id"] = rec["id"]
	for _, f := range c.Fields {
		out[f.Name] = encodeValue(rec[f.Name])
	}
	return out
}

func encodeValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		if x.IsZero() {
			return nil
		}
		return x.Format(schema.TimeLayout)
	case json.RawMessage:
		if len(x) == 0 {
			return nil
		}
		return x
	default:
		return v
	}
}

// compareValues orders stored values with nulls first.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch x := a.(type) {
	case int64:
		if y, ok := b.(int64); ok {
			return compareOrdered(x, y)
		}
	case float64:
		if y, ok := b.(float64); ok {
			return compareOrdered(x, y)
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			return compareOrdered(boolRank(x), boolRank(y))
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	case json.RawMessage:
		if y, ok := b.(json.RawMessage); ok {
			return bytes.Compare(x, y)
		}
	}
	return 0
}

func compareOrdered[T int64 | float64 | int](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}
