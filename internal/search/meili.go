package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

// Meili implements Searcher via Meilisearch. Each backend gets one index.
type Meili struct {
	client  meili.ServiceManager
	index   string
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the backend's index.
// A failed initial connection leaves it unhealthy; the health loop retries.
func NewMeili(url, apiKey, backend string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		index:  IndexName(backend),
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

// IndexName is the Meilisearch index uid of a backend.
func IndexName(backend string) string {
	return "crudsync_" + backend
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        m.index,
		PrimaryKey: "uid",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", m.index, err)
	}

	index := m.client.Index(m.index)
	filterable := []interface{}{"collection"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", m.index, err)
	}
	searchable := []string{"name"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", m.index, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries the backend's index, optionally restricted to one collection.
func (m *Meili) Search(_ context.Context, q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = defaultLimit
	}
	sr := &meili.SearchRequest{
		IndexUID:              m.index,
		Query:                 q.Text,
		Limit:                 limit,
		Offset:                int64(q.Offset),
		AttributesToHighlight: []string{"name"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	}
	if q.Collection != "" {
		sr.Filter = []string{fmt.Sprintf("collection = %q", q.Collection)}
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{sr},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	var results []Result
	total := 0
	for _, r := range resp.Results {
		total += int(r.EstimatedTotalHits)
		for _, hit := range r.Hits {
			results = append(results, hitToResult(hit))
		}
	}
	return results, total, nil
}

func hitToResult(hit meili.Hit) Result {
	r := Result{
		Collection: decodeString(hit, "collection"),
		Title:      decodeString(hit, "name"),
	}
	if raw, ok := hit["id"]; ok {
		var id any
		if err := json.Unmarshal(raw, &id); err == nil {
			if f, ok := id.(float64); ok && f == float64(int64(f)) {
				id = int64(f)
			}
			r.ID = id
		}
	}
	if formatted := decodeFormattedString(hit, "name"); formatted != r.Title {
		r.Snippet = formatted
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]any
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	s, _ := formatted[key].(string)
	return strings.TrimSpace(s)
}

var uidUnsafe = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// DocumentUID builds a Meilisearch-safe primary key for a row.
func DocumentUID(collection string, id any) string {
	return collection + "-" + uidUnsafe.ReplaceAllString(fmt.Sprint(id), "_")
}

// Index adds or replaces records in the search index.
func (m *Meili) Index(records []Record) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(m.index).AddDocuments(records, nil)
	return err
}

// Delete removes a row from the search index.
func (m *Meili) Delete(uid string) error {
	_, err := m.client.Index(m.index).DeleteDocument(uid, nil)
	return err
}
