// Package metrics wires the credit layer's Prometheus collectors.
package metrics

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "credit_layer",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "credit_layer",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "credit_layer",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	eventsAppended = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "credit_layer",
			Subsystem: "events",
			Name:      "appended_total",
			Help:      "Total number of events appended to the log.",
		},
		[]string{"key"},
	)

	eventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "credit_layer",
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Total number of events dropped for unknown keys.",
		},
		[]string{"key"},
	)

	scoreRecomputes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "credit_layer",
			Subsystem: "score",
			Name:      "recomputes_total",
			Help:      "Total number of derived score recomputations.",
		},
	)

	capRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "credit_layer",
			Subsystem: "score",
			Name:      "cap_rejections_total",
			Help:      "Total number of events zeroed by a cap window.",
		},
		[]string{"reason"},
	)

	badgeUnlocks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "credit_layer",
			Subsystem: "rewards",
			Name:      "badge_unlocks_total",
			Help:      "Total number of badge awards recorded.",
		},
		[]string{"scope"},
	)

	mirrorFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "credit_layer",
			Subsystem: "mirror",
			Name:      "failures_total",
			Help:      "Total number of failed backend mirror posts.",
		},
	)

	walletSpendRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "credit_layer",
			Subsystem: "wallet",
			Name:      "spend_rejections_total",
			Help:      "Total number of spends rejected for insufficient funds.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		eventsAppended,
		eventsDropped,
		scoreRecomputes,
		capRejections,
		badgeUnlocks,
		mirrorFailures,
		walletSpendRejections,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
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

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordEventAppended counts a successful append.
func RecordEventAppended(key string) {
	eventsAppended.WithLabelValues(key).Inc()
}

// RecordEventDropped counts an event rejected for an unknown key.
func RecordEventDropped(key string) {
	if key == "" {
		key = "empty"
	}
	eventsDropped.WithLabelValues(key).Inc()
}

// RecordScoreRecompute counts a derived-state recomputation.
func RecordScoreRecompute() {
	scoreRecomputes.Inc()
}

// RecordCapRejection counts an event zeroed by a cap window.
func RecordCapRejection(reason string) {
	capRejections.WithLabelValues(reason).Inc()
}

// RecordBadgeUnlock counts a badge award in a scope.
func RecordBadgeUnlock(scope string) {
	badgeUnlocks.WithLabelValues(scope).Inc()
}

// RecordMirrorFailure counts a failed backend mirror post.
func RecordMirrorFailure() {
	mirrorFailures.Inc()
}

// RecordSpendRejection counts a spend rejected for insufficient funds.
func RecordSpendRejection() {
	walletSpendRejections.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Hijack passes through so websocket upgrades work behind instrumentation.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return h.Hijack()
}

// canonicalPath collapses per-user and per-resource segments so label
// cardinality stays bounded.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "users":
		if len(parts) == 1 {
			return "/users"
		}
		if len(parts) == 2 {
			return "/users/:user"
		}
		return "/users/:user/" + parts[2]
	case "scopes":
		if len(parts) < 3 {
			return "/scopes"
		}
		return "/scopes/:scope/" + parts[2]
	case "export":
		if len(parts) == 1 {
			return "/export"
		}
		return "/export/" + parts[1]
	default:
		return "/" + parts[0]
	}
}
