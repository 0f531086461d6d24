// Package metrics exposes sync and load activity as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ritza-co/bryntum-backend-guides/internal/reconcile"
)

// Recorder counts committed row mutations and times batches of one backend.
type Recorder struct {
	backend  string
	registry *prometheus.Registry
	rows     *prometheus.CounterVec
	batches  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New registers the recorder's collectors, plus the Go and process
// collectors, on a fresh registry.
func New(backend string) *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Recorder{
		backend:  backend,
		registry: reg,
		rows: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crudsync_rows_applied_total",
			Help: "Committed row mutations by collection and operation",
		}, []string{"backend", "collection", "op"}),
		batches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crudsync_batches_total",
			Help: "Sync and load batches by outcome",
		}, []string{"backend", "op", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crudsync_batch_duration_seconds",
			Help:    "Time to apply a sync batch or read a snapshot",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"backend", "op"}),
	}
}

func (r *Recorder) RowApplied(_ context.Context, ev reconcile.RowEvent) {
	r.rows.WithLabelValues(r.backend, ev.Collection, string(ev.Op)).Inc()
}

func (r *Recorder) BatchFinished(_ context.Context, op string, elapsed time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	r.batches.WithLabelValues(r.backend, op, outcome).Inc()
	r.duration.WithLabelValues(r.backend, op).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
