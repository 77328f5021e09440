// Package metrics exposes quartz runtime metrics through a dedicated
// Prometheus registry. Cache counters are read straight off the cache's
// own lock-guarded snapshot via collector functions, so Prometheus and the
// JSON stats endpoint can never disagree.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oriys/quartz/internal/cache"
)

// Request duration buckets in milliseconds.
var defaultBuckets = []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000}

// Metrics wraps the prometheus collectors for the kv service.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

var promMetrics *Metrics

// Init builds the Prometheus registry. stats feeds the cache collectors;
// poolSize is the fixed store pool size, exported as a gauge for capacity
// dashboards.
func Init(namespace string, stats func() cache.Stats, poolSize int) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total kv operations by verb and outcome",
			},
			[]string{"op", "outcome"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_ms",
				Help:      "KV operation duration in milliseconds",
				Buckets:   defaultBuckets,
			},
			[]string{"op"},
		),
	}

	registry.MustRegister(m.requestsTotal, m.requestDuration)

	registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total cache hits",
		},
		func() float64 { return float64(stats().Hits) },
	))
	registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total cache misses",
		},
		func() float64 { return float64(stats().Misses) },
	))
	registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_items",
			Help:      "Current number of cached entries",
		},
		func() float64 { return float64(stats().Items) },
	))

	poolGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "store_pool_size",
		Help:      "Fixed size of the durable store connection pool",
	})
	poolGauge.Set(float64(poolSize))
	registry.MustRegister(poolGauge)

	promMetrics = m
}

// RecordRequest records one kv operation outcome and its latency.
func RecordRequest(op, outcome string, durationMs float64) {
	if promMetrics == nil {
		return
	}
	promMetrics.requestsTotal.WithLabelValues(op, outcome).Inc()
	promMetrics.requestDuration.WithLabelValues(op).Observe(durationMs)
}

// Handler returns the Prometheus exposition endpoint.
func Handler() http.Handler {
	if promMetrics == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}
