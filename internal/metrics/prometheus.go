package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the API server
var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bladetemp_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bladetemp_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status_code"},
	)

	// Upstream metrics backend queries
	upstreamQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bladetemp_upstream_queries_total",
			Help: "Total number of queries sent to the metrics backend",
		},
		[]string{"query", "status"},
	)

	upstreamQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bladetemp_upstream_query_duration_seconds",
			Help:    "Metrics backend query duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"query"},
	)

	resolverFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bladetemp_resolver_fallbacks_total",
			Help: "Requests served with an empty instance to node mapping",
		},
		[]string{"source"},
	)

	resolverCacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bladetemp_resolver_cache_lookups_total",
			Help: "Instance to node mapping cache lookups by result",
		},
		[]string{"result"},
	)

	unresolvedInstancesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bladetemp_unresolved_instances_total",
			Help: "Sensor instances reported under the unknown node name",
		},
	)

	nodeTemperature = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bladetemp_node_temperature_celsius",
			Help: "Last reported maximum temperature per backend, node and window",
		},
		[]string{"backend", "node", "window"},
	)

	// Stream metrics
	streamClientsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bladetemp_stream_clients_active",
			Help: "Number of connected websocket stream clients",
		},
	)

	streamBroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bladetemp_stream_broadcasts_total",
			Help: "Stream poll cycles by outcome",
		},
		[]string{"status"},
	)
)

// RecordHTTPRequest records metrics for HTTP requests
func RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	labels := prometheus.Labels{
		"method":      method,
		"path":        path,
		"status_code": strconv.Itoa(statusCode),
	}

	httpRequestsTotal.With(labels).Inc()
	httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// RecordUpstreamQuery records one metrics backend query by logical name
// (metadata, minutely, hourly, daily).
func RecordUpstreamQuery(query string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}

	upstreamQueriesTotal.With(prometheus.Labels{"query": query, "status": status}).Inc()
	upstreamQueryDuration.With(prometheus.Labels{"query": query}).Observe(duration.Seconds())
}

// RecordResolverFallback counts a request that continued without node names
func RecordResolverFallback(source string) {
	resolverFallbacksTotal.With(prometheus.Labels{"source": source}).Inc()
}

// RecordResolverCacheLookup counts a mapping cache hit or miss
func RecordResolverCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	resolverCacheLookupsTotal.With(prometheus.Labels{"result": result}).Inc()
}

// RecordUnresolvedInstances counts instances that had no node mapping
func RecordUnresolvedInstances(n int) {
	if n > 0 {
		unresolvedInstancesTotal.Add(float64(n))
	}
}

// NodeReading is one node/window value of a temperature report
type NodeReading struct {
	Node    string
	Window  string
	Celsius float64
}

// nodeTemperatureMu keeps concurrent replacements for a backend from interleaving
var nodeTemperatureMu sync.Mutex

// ReplaceNodeTemperatures publishes the latest report of a backend. Series of
// that backend for nodes absent from readings are removed.
func ReplaceNodeTemperatures(backend string, readings []NodeReading) {
	nodeTemperatureMu.Lock()
	defer nodeTemperatureMu.Unlock()

	nodeTemperature.DeletePartialMatch(prometheus.Labels{"backend": backend})
	for _, r := range readings {
		nodeTemperature.With(prometheus.Labels{
			"backend": backend,
			"node":    r.Node,
			"window":  r.Window,
		}).Set(r.Celsius)
	}
}

// RecordStreamConnection records a websocket client joining
func RecordStreamConnection() {
	streamClientsActive.Inc()
}

// RecordStreamDisconnection records a websocket client leaving
func RecordStreamDisconnection() {
	streamClientsActive.Dec()
}

// RecordStreamBroadcast records the outcome of one stream poll cycle
func RecordStreamBroadcast(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	streamBroadcastsTotal.With(prometheus.Labels{"status": status}).Inc()
}
