// Package metrics holds the Prometheus collectors for the HTTP surface, the
// refresh cycles, the upstream client, the read cache and the chat parser.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "crypto_assistant"

var (
	// Registry holds the application collectors
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	refreshRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "runs_total",
			Help:      "Refresh cycle runs by cycle and outcome.",
		},
		[]string{"cycle", "outcome"},
	)

	refreshDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "run_duration_seconds",
			Help:      "Duration of refresh cycle runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"cycle"},
	)

	refreshItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "items_total",
			Help:      "Coins and series written or skipped by refresh cycles.",
		},
		[]string{"cycle", "result"},
	)

	upstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Market data provider requests by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	upstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "Duration of market data provider requests.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 9),
		},
		[]string{"operation"},
	)

	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "circuit_open",
			Help:      "1 while the provider circuit breaker is not closed.",
		},
		[]string{"breaker"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Read cache lookups by result.",
		},
		[]string{"result"},
	)

	cacheFlushes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "flushes_total",
			Help:      "Number of whole-cache flushes.",
		},
	)

	chatQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "queries_total",
			Help:      "Chat queries by resolved intent and whether they were answered.",
		},
		[]string{"intent", "answered"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		refreshRuns,
		refreshDuration,
		refreshItems,
		upstreamRequests,
		upstreamDuration,
		breakerState,
		cacheLookups,
		cacheFlushes,
		chatQueries,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler exposes the registry
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler records request count and latency per route template
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// RecordRefresh records one refresh cycle run
func RecordRefresh(cycle string, err error, duration time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	refreshRuns.WithLabelValues(cycle, outcome).Inc()
	refreshDuration.WithLabelValues(cycle).Observe(duration.Seconds())
}

// RecordRefreshItems adds per-item results of a refresh cycle
func RecordRefreshItems(cycle string, updated, failed int) {
	if updated > 0 {
		refreshItems.WithLabelValues(cycle, "updated").Add(float64(updated))
	}
	if failed > 0 {
		refreshItems.WithLabelValues(cycle, "failed").Add(float64(failed))
	}
}

// RecordUpstream records one provider request
func RecordUpstream(operation string, err error, duration time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	upstreamRequests.WithLabelValues(operation, outcome).Inc()
	upstreamDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetBreakerOpen tracks whether the named breaker is currently rejecting calls
func SetBreakerOpen(name string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	breakerState.WithLabelValues(name).Set(v)
}

// RecordCacheLookup counts a read cache hit or miss
func RecordCacheLookup(hit bool) {
	if hit {
		cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	cacheLookups.WithLabelValues("miss").Inc()
}

// RecordCacheFlush counts a whole-cache flush
func RecordCacheFlush() {
	cacheFlushes.Inc()
}

// RecordChatQuery counts a chat query by intent
func RecordChatQuery(intent string, answered bool) {
	chatQueries.WithLabelValues(intent, strconv.FormatBool(answered)).Inc()
}
