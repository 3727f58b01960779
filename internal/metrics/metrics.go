// Package metrics provides Prometheus metrics for sync runs and the preview server.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	// Preview server request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_http_requests_total",
			Help: "Total number of preview server requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "folio_http_request_duration_seconds",
			Help:    "Preview server request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// RecordRequest records one preview server request
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Handler serves the process metrics
func Handler() http.Handler {
	return promhttp.Handler()
}

// Run holds the counters of one sync run on its own registry, so a batch job can push them
type Run struct {
	reg *prometheus.Registry

	Assets      *prometheus.CounterVec
	Pruned      *prometheus.CounterVec
	CacheLookup *prometheus.CounterVec
	Generative  *prometheus.CounterVec
	Duration    prometheus.Gauge
	LastSuccess prometheus.Gauge
}

// NewRun creates the counters for a run
func NewRun() *Run {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Run{
		reg: reg,
		Assets: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_sync_assets_total",
			Help: "Media items processed, by outcome",
		}, []string{"outcome"}),
		Pruned: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_sync_pruned_total",
			Help: "Orphaned manifest entries handled, by outcome",
		}, []string{"outcome"}),
		CacheLookup: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_sync_cache_lookups_total",
			Help: "Derived cache lookups, by cache and result",
		}, []string{"cache", "result"}),
		Generative: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_sync_generative_total",
			Help: "Generative service calls and fallbacks",
		}, []string{"kind"}),
		Duration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "folio_sync_duration_seconds",
			Help: "Wall time of the last sync run",
		}),
		LastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name: "folio_sync_last_success_timestamp_seconds",
			Help: "Unix time of the last successful sync run",
		}),
	}
}

// Registry exposes the run's registry
func (r *Run) Registry() *prometheus.Registry {
	return r.reg
}

// Push sends the run's metrics to a Pushgateway
func (r *Run) Push(url string) error {
	if err := push.New(url, "folio_sync").Gatherer(r.reg).Push(); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
