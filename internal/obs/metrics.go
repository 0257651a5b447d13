package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Domain metrics.
var (
	referenceLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reference_loads_total",
			Help: "Reference cache loads by scope tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)

	referenceStaleDiscards = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reference_stale_discards_total",
		Help: "Reference responses dropped because a newer request superseded them.",
	})

	aggregationCalls = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aggregation_call_duration_seconds",
			Help:    "Remote aggregation call latencies by method and outcome.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "outcome"},
	)

	queueMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reading_queue_mutations_total",
			Help: "Reading queue commands by operation and whether they applied.",
		},
		[]string{"op", "applied"},
	)

	openPresentations = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "presentations_open",
		Help: "Report presentations currently open.",
	})

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the last readiness probe succeeded.",
	})
)

var initOnce sync.Once

// Init registers all metrics in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			referenceLoads, referenceStaleDiscards, aggregationCalls,
			queueMutations, openPresentations, ready,
		)
	})
}

// Handler exposes the Prometheus endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records RPS, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses identifiers so label cardinality stays bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	const prefix = "/v1/presentations/"
	if !strings.HasPrefix(path, prefix) {
		return path
	}
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return path
	}
	parts := strings.Split(rest, "/")
	switch len(parts) {
	case 1:
		return prefix + ":id"
	case 2:
		return prefix + ":id/" + parts[1]
	default:
		return path
	}
}

func ObserveReferenceLoad(tier, outcome string) {
	referenceLoads.WithLabelValues(tier, outcome).Inc()
}

func ObserveStaleDiscard() { referenceStaleDiscards.Inc() }

func ObserveAggregationCall(method, outcome string, d time.Duration) {
	aggregationCalls.WithLabelValues(method, outcome).Observe(d.Seconds())
}

func ObserveQueueMutation(op string, applied bool) {
	queueMutations.WithLabelValues(op, strconv.FormatBool(applied)).Inc()
}

func PresentationOpened() { openPresentations.Inc() }
func PresentationClosed() { openPresentations.Dec() }

// SetReady mirrors the readiness probe result into a gauge.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush lets SSE handlers stream through the instrumentation wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
