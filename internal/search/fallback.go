package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/ritza-co/bryntum-backend-guides/internal/schema"
	"github.com/ritza-co/bryntum-backend-guides/internal/store"
)

// StoreScan implements Searcher by scanning the store's titled collections
// for a case-insensitive substring match. It is the fallback when
// Meilisearch is not configured or unreachable.
type StoreScan struct {
	backend *schema.Backend
	store   store.Store
}

// NewStoreScan creates a scanning searcher over the backend's store.
func NewStoreScan(backend *schema.Backend, st store.Store) *StoreScan {
	return &StoreScan{backend: backend, store: st}
}

// Healthy always returns true: if the store is down, the whole app is down.
func (s *StoreScan) Healthy() bool {
	return true
}

func (s *StoreScan) Search(ctx context.Context, q Query) ([]Result, int, error) {
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	if needle == "" {
		return nil, 0, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	records, err := s.Records(ctx)
	if err != nil {
		return nil, 0, err
	}
	var matches []Result
	for _, rec := range records {
		if q.Collection != "" && rec.Collection != q.Collection {
			continue
		}
		if !strings.Contains(strings.ToLower(rec.Name), needle) {
			continue
		}
		matches = append(matches, Result{Collection: rec.Collection, ID: rec.ID, Title: rec.Name})
	}
	total := len(matches)
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	return matches[offset:end], total, nil
}

// Records returns the index records of every titled row in the store.
func (s *StoreScan) Records(ctx context.Context) ([]Record, error) {
	var out []Record
	for _, c := range s.backend.Collections {
		if c.Title == "" {
			continue
		}
		t, err := s.store.Table(c.Name)
		if err != nil {
			return nil, fmt.Errorf("search scan %s: %w", c.Name, err)
		}
		rows, err := t.Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("search scan %s: %w", c.Name, err)
		}
		for _, row := range rows {
			out = append(out, RecordOf(c, row))
		}
	}
	return out, nil
}

// RecordOf builds the index record of a stored row.
func RecordOf(c *schema.Collection, row store.Record) Record {
	id := row.Key().Value()
	name, _ := row[c.Title].(string)
	return Record{
		UID:        DocumentUID(c.Name, id),
		Collection: c.Name,
		ID:         id,
		Name:       name,
	}
}
