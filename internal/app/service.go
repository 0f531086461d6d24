package app

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-logr/logr"

	"github.com/ritza-co/bryntum-backend-guides/internal/export"
	"github.com/ritza-co/bryntum-backend-guides/internal/metrics"
	"github.com/ritza-co/bryntum-backend-guides/internal/reconcile"
	"github.com/ritza-co/bryntum-backend-guides/internal/schema"
	"github.com/ritza-co/bryntum-backend-guides/internal/search"
)

// Pinger is a dependency checked by /api/ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Search   *search.Service
	Exporter *export.Service
	Metrics  *metrics.Recorder
	// Checks are pinged by /api/ready next to the store, keyed by name.
	Checks map[string]Pinger
	Logger logr.Logger
}

type Service struct {
	engine   *reconcile.Engine
	search   *search.Service
	exporter *export.Service
	metrics  *metrics.Recorder
	checks   map[string]Pinger
	log      logr.Logger
}

// New builds the service around an engine. Search falls back to a store
// scan and exports are render-only when the options leave them unset.
func New(engine *reconcile.Engine, opts Options) *Service {
	log := opts.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	s := &Service{
		engine:   engine,
		search:   opts.Search,
		exporter: opts.Exporter,
		metrics:  opts.Metrics,
		checks:   opts.Checks,
		log:      log,
	}
	if s.search == nil {
		s.search = search.NewService(engine.Backend(), nil, search.NewStoreScan(engine.Backend(), engine.Store()))
	}
	if s.exporter == nil {
		s.exporter = export.NewService(engine.Backend().Name, engine, nil, log)
	}
	return s
}

func (s *Service) Backend() *schema.Backend {
	return s.engine.Backend()
}

func (s *Service) Ping(ctx context.Context) error {
	return s.engine.Store().Ping(ctx)
}

// ReadyChecks pings every optional dependency and returns the failures by name.
func (s *Service) ReadyChecks(ctx context.Context) map[string]error {
	out := make(map[string]error, len(s.checks))
	for name, p := range s.checks {
		out[name] = p.Ping(ctx)
	}
	return out
}

func (s *Service) Load(ctx context.Context, requestID json.RawMessage) (*reconcile.Snapshot, error) {
	return s.engine.Load(ctx, requestID)
}

// Sync parses and applies a sync request body. A malformed body yields a nil
// response and an error wrapping reconcile.ErrMalformed.
func (s *Service) Sync(ctx context.Context, body []byte) (*reconcile.SyncResponse, error) {
	req, err := reconcile.ParseSyncRequest(body)
	if err != nil {
		s.log.V(1).Info("sync rejected", "request", requestIDFrom(ctx), "error", err.Error())
		return nil, err
	}
	resp, err := s.engine.Sync(ctx, req)
	if err != nil {
		s.log.V(1).Info("sync failed", "request", requestIDFrom(ctx), "error", err.Error())
	}
	return resp, err
}

// primary is the collection served by the CRUD endpoints.
func (s *Service) primary() string {
	return s.Backend().Collections[0].Name
}

func (s *Service) Read(ctx context.Context) ([]map[string]any, error) {
	return s.engine.Read(ctx, s.primary())
}

func (s *Service) Create(ctx context.Context, data []reconcile.Patch) ([]map[string]any, error) {
	return s.engine.Create(ctx, s.primary(), data)
}

func (s *Service) Update(ctx context.Context, data []reconcile.Patch) ([]map[string]any, error) {
	return s.engine.Update(ctx, s.primary(), data)
}

func (s *Service) Delete(ctx context.Context, ids []json.RawMessage) error {
	return s.engine.Delete(ctx, s.primary(), ids)
}

func (s *Service) Search(ctx context.Context, q search.Query) (search.Response, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Collection != "" {
		if _, ok := s.Backend().Collection(q.Collection); !ok {
			return search.Response{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown collection", map[string]any{"collection": q.Collection})
		}
	}
	if q.Limit < 0 || q.Offset < 0 {
		return search.Response{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit and offset must not be negative", nil)
	}
	return s.search.Search(ctx, q), nil
}

func (s *Service) Export(ctx context.Context, req export.Request) (*export.Result, error) {
	return s.exporter.Export(ctx, req)
}

// MetricsHandler serves the Prometheus exposition, or nil without a recorder.
func (s *Service) MetricsHandler() http.Handler {
	if s.metrics == nil {
		return nil
	}
	return s.metrics.Handler()
}
