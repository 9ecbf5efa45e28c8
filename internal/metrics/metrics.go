// Package metrics instruments the ingestion engine with Prometheus
// collectors bound to a private registry per worker instance rather
// than a package-level global, so that multiple workers in the same
// process never collide on collector registration.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sink holds every Prometheus collector the engine emits. It is created
// once per worker and passed down to the components that record against
// it; nothing here touches prometheus.DefaultRegisterer.
type Sink struct {
	registry *prometheus.Registry

	FetchAttempts    *prometheus.CounterVec
	FetchDuration    *prometheus.HistogramVec
	BreakerState     *prometheus.GaugeVec
	BreakerTrips     *prometheus.CounterVec
	CacheHits        *prometheus.CounterVec
	CacheMisses      *prometheus.CounterVec
	CacheEvictions   *prometheus.CounterVec
	RateLimitWaits   *prometheus.HistogramVec
	RateLimitDrops   *prometheus.CounterVec
	RateLimitRate    *prometheus.GaugeVec
	DLQEvents        *prometheus.CounterVec
	PollDuration     *prometheus.HistogramVec
	RecordsEmitted   *prometheus.CounterVec
	ChainQueueDepth  *prometheus.GaugeVec
	OffsetCommitted  *prometheus.GaugeVec
}

// New builds a Sink with its own private registry.
func New() *Sink {
	reg := prometheus.NewRegistry()

	s := &Sink{
		registry: reg,
		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "http_ingest",
			Subsystem: "fetch",
			Name:      "attempts_total",
			Help:      "Total HTTP fetch attempts by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "http_ingest",
			Subsystem: "fetch",
			Name:      "duration_seconds",
			Help:      "Duration of HTTP fetch attempts by endpoint.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"endpoint"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "http_ingest",
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Circuit breaker state (0=closed, 1=half_open, 2=open).",
		}, []string{"endpoint"}),
		BreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "http_ingest",
			Subsystem: "breaker",
			Name:      "trips_total",
			Help:      "Total circuit breaker trips by endpoint.",
		}, []string{"endpoint"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "http_ingest",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total response cache hits by endpoint.",
		}, []string{"endpoint"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "http_ingest",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total response cache misses by endpoint.",
		}, []string{"endpoint"}),
		CacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "http_ingest",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Total response cache evictions by endpoint and reason.",
		}, []string{"endpoint", "reason"}),
		RateLimitWaits: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "http_ingest",
			Subsystem: "ratelimit",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for rate limiter permission by endpoint.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"endpoint"}),
		RateLimitDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "http_ingest",
			Subsystem: "ratelimit",
			Name:      "drops_total",
			Help:      "Total requests dropped by the rate limiter overflow strategy.",
		}, []string{"endpoint"}),
		RateLimitRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "http_ingest",
			Subsystem: "ratelimit",
			Name:      "current_rate",
			Help:      "Current effective rate limit (requests/sec) by endpoint, after adaptive adjustment.",
		}, []string{"endpoint"}),
		DLQEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "http_ingest",
			Subsystem: "dlq",
			Name:      "events_total",
			Help:      "Total records routed to the dead-letter queue by endpoint and reason.",
		}, []string{"endpoint", "reason"}),
		PollDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "http_ingest",
			Subsystem: "poll",
			Name:      "duration_seconds",
			Help:      "Duration of a single poll cycle across all endpoints.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"endpoint"}),
		RecordsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "http_ingest",
			Subsystem: "poll",
			Name:      "records_emitted_total",
			Help:      "Total records emitted by endpoint.",
		}, []string{"endpoint"}),
		ChainQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "http_ingest",
			Subsystem: "chaining",
			Name:      "queue_depth",
			Help:      "Current depth of a chaining child's pending-parent-value queue.",
		}, []string{"child"}),
		OffsetCommitted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "http_ingest",
			Subsystem: "offset",
			Name:      "last_commit_unixtime",
			Help:      "Unix timestamp of the last committed offset by endpoint.",
		}, []string{"endpoint"}),
	}

	reg.MustRegister(
		s.FetchAttempts, s.FetchDuration,
		s.BreakerState, s.BreakerTrips,
		s.CacheHits, s.CacheMisses, s.CacheEvictions,
		s.RateLimitWaits, s.RateLimitDrops, s.RateLimitRate,
		s.DLQEvents,
		s.PollDuration, s.RecordsEmitted,
		s.ChainQueueDepth, s.OffsetCommitted,
	)
	return s
}

// Handler exposes the Sink's collectors on a standard promhttp handler,
// suitable for mounting under e.g. /metrics in a host process.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}
