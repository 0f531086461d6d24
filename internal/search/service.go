package search

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ritza-co/bryntum-backend-guides/internal/reconcile"
	"github.com/ritza-co/bryntum-backend-guides/internal/schema"
)

// Service is the facade that tries Meilisearch first and falls back to a
// store scan. It also keeps the index current by observing sync commits.
type Service struct {
	backend  *schema.Backend
	meili    *Meili
	fallback *StoreScan

	// Index writes run on one worker so they land in commit order.
	sink      indexer
	jobs      chan indexJob
	done      chan struct{}
	closeOnce sync.Once
}

// indexer is the write side of the search index.
type indexer interface {
	Healthy() bool
	Index(records []Record) error
	Delete(uid string) error
}

type indexJob struct {
	uid string
	rec *Record // nil deletes uid
}

const indexQueueSize = 256

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(backend *schema.Backend, meili *Meili, fallback *StoreScan) *Service {
	s := &Service{backend: backend, meili: meili, fallback: fallback}
	if meili != nil {
		s.startIndexer(meili)
	}
	return s
}

func (s *Service) startIndexer(sink indexer) {
	s.sink = sink
	s.jobs = make(chan indexJob, indexQueueSize)
	s.done = make(chan struct{})
	go s.runIndexer()
}

func (s *Service) runIndexer() {
	defer close(s.done)
	for job := range s.jobs {
		if job.rec == nil {
			if err := s.sink.Delete(job.uid); err != nil {
				log.Printf("search: delete %s: %v", job.uid, err)
			}
			continue
		}
		if err := s.sink.Index([]Record{*job.rec}); err != nil {
			log.Printf("search: index %s: %v", job.uid, err)
		}
	}
}

// Search tries Meilisearch if healthy, otherwise falls back to the store scan.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Success: true, Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to store scan: %v", err)
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		log.Printf("search: store scan error: %v", err)
		return Response{Success: true, Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Success: true, Results: nonNil(results), Total: total, Query: q.Text}
}

// RowApplied queues the row for indexing or removal in Meilisearch. The
// commit does not wait for the write.
func (s *Service) RowApplied(_ context.Context, ev reconcile.RowEvent) {
	if s.sink == nil || !s.sink.Healthy() {
		return
	}
	c, ok := s.backend.Collection(ev.Collection)
	if !ok || c.Title == "" {
		return
	}
	uid := DocumentUID(c.Name, ev.Key.Value())
	switch ev.Op {
	case reconcile.OpAdded, reconcile.OpUpdated:
		if _, titled := ev.Record[c.Title]; !titled {
			return
		}
		name, _ := ev.Record[c.Title].(string)
		rec := Record{UID: uid, Collection: c.Name, ID: ev.Key.Value(), Name: name}
		s.jobs <- indexJob{uid: uid, rec: &rec}
	case reconcile.OpRemoved, reconcile.OpCascaded:
		s.jobs <- indexJob{uid: uid}
	}
}

func (s *Service) BatchFinished(context.Context, string, time.Duration, error) {}

// ReindexAll reads every titled row from the store and pushes it to Meilisearch.
// Called at startup when Meilisearch is healthy.
func (s *Service) ReindexAll(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	records, err := s.fallback.Records(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.meili.Index(records); err != nil {
		log.Printf("search: reindex: %v", err)
	}
}

// Close drains the index queue and stops the Meilisearch health monitor.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		if s.jobs != nil {
			close(s.jobs)
			<-s.done
		}
		if s.meili != nil {
			s.meili.Close()
		}
	})
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
