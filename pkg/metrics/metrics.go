// Package metrics defines the Prometheus collectors for the index build and
// the query service and serves them for scraping on a dedicated port.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	SearchQueriesTotal *prometheus.CounterVec
	SearchLatency      *prometheus.HistogramVec
	SearchResultsCount prometheus.Histogram
	PostingFetchErrors *prometheus.CounterVec
	BlocksFetched      *prometheus.CounterVec
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter
	IndexReloadsTotal  *prometheus.CounterVec

	BlocksSealedTotal   *prometheus.CounterVec
	BlockUploadsTotal   *prometheus.CounterVec
	BucketsWrittenTotal *prometheus.CounterVec
	TruncatedPostings   *prometheus.CounterVec
	BuildDuration       *prometheus.HistogramVec
	CircuitBreakerState *prometheus.GaugeVec
}

// New creates all collectors and registers them on reg. Passing nil uses the
// default Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (hit, zero_result, empty_query).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search latency in seconds by stage.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"stage"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		PostingFetchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "posting_fetch_errors_total",
				Help: "Posting list reads that failed and were treated as empty, by field.",
			},
			[]string{"field"},
		),
		BlocksFetched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blocks_fetched_total",
				Help: "Posting blocks downloaded by query sessions, by field.",
			},
			[]string{"field"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses.",
			},
		),
		IndexReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_reloads_total",
				Help: "Index context reloads by status.",
			},
			[]string{"status"},
		),
		BlocksSealedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_blocks_sealed_total",
				Help: "Posting blocks sealed during builds, by field.",
			},
			[]string{"field"},
		),
		BlockUploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_block_uploads_total",
				Help: "Block uploads by field and status.",
			},
			[]string{"field", "status"},
		),
		BucketsWrittenTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_buckets_written_total",
				Help: "Bucket write attempts by field and status.",
			},
			[]string{"field", "status"},
		),
		TruncatedPostings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_truncated_postings_total",
				Help: "Postings whose term frequency exceeded 65535 and was masked.",
			},
			[]string{"field"},
		),
		BuildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "index_build_duration_seconds",
				Help:    "Wall time of a field index build.",
				Buckets: prometheus.ExponentialBuckets(0.1, 4, 10),
			},
			[]string{"field"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.PostingFetchErrors,
		m.BlocksFetched,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.IndexReloadsTotal,
		m.BlocksSealedTotal,
		m.BlockUploadsTotal,
		m.BucketsWrittenTotal,
		m.TruncatedPostings,
		m.BuildDuration,
		m.CircuitBreakerState,
	)

	return m
}
