package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/finvault/internal/core/domain"
)

const namespace = "finvault"

// HTTPServerMetrics carries the API request metrics and the retrieval
// telemetry reported by the use cases.
type HTTPServerMetrics struct {
	service  string
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	retrievalTotal    *prometheus.CounterVec
	retrievedRecords  *prometheus.HistogramVec
	retrievalDuration *prometheus.HistogramVec
	backendFailures   *prometheus.CounterVec
	verdictsTotal     *prometheus.CounterVec
	inferenceTotal    *prometheus.CounterVec
	inferenceDegraded *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	retrievalTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Total hybrid retrievals by resolved mode.",
		},
		[]string{"service", "mode"},
	)
	retrievedRecords := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "records",
			Help:      "Distribution of records returned per retrieval by kind.",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 20, 50, 100},
		},
		[]string{"service", "kind"},
	)
	retrievalDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Hybrid retrieval duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "mode"},
	)
	backendFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "backend_failures_total",
			Help:      "Backend calls that degraded a retrieval.",
		},
		[]string{"service", "backend"},
	)
	verdictsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "contradiction",
			Name:      "verdicts_total",
			Help:      "Computed contradiction verdicts by kind.",
		},
		[]string{"service", "kind"},
	)
	inferenceTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "requests_total",
			Help:      "Research inference calls by model.",
		},
		[]string{"service", "model"},
	)
	inferenceDegraded := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "degraded_total",
			Help:      "Research answers replaced by the fallback text.",
		},
		[]string{"service", "model"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		retrievalTotal,
		retrievedRecords,
		retrievalDuration,
		backendFailures,
		verdictsTotal,
		inferenceTotal,
		inferenceDegraded,
	)

	return &HTTPServerMetrics{
		service:           service,
		registry:          registry,
		requestTotal:      requestTotal,
		requestDuration:   requestDuration,
		requestInFlight:   requestInFlight,
		retrievalTotal:    retrievalTotal,
		retrievedRecords:  retrievedRecords,
		retrievalDuration: retrievalDuration,
		backendFailures:   backendFailures,
		verdictsTotal:     verdictsTotal,
		inferenceTotal:    inferenceTotal,
		inferenceDegraded: inferenceDegraded,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware labels requests by route pattern so path parameters do not
// explode cardinality.
func (m *HTTPServerMetrics) Middleware(routePattern func(*http.Request) string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		path := r.URL.Path
		if routePattern != nil {
			if pattern := routePattern(r); pattern != "" {
				path = pattern
			}
		}
		m.requestTotal.WithLabelValues(
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func (m *HTTPServerMetrics) ObserveRetrieval(summary domain.RetrievalSummary) {
	mode := string(summary.Mode)
	if mode == "" {
		mode = "unknown"
	}
	m.retrievalTotal.WithLabelValues(m.service, mode).Inc()
	m.retrievedRecords.WithLabelValues(m.service, "numeric").Observe(float64(summary.NumericRetrieved))
	m.retrievedRecords.WithLabelValues(m.service, "narrative").Observe(float64(summary.NarrativeRetrieved))
	m.retrievalDuration.WithLabelValues(m.service, mode).Observe(float64(summary.LatencyMs) / 1000)
}

func (m *HTTPServerMetrics) ObserveBackendFailure(backend string) {
	if backend == "" {
		backend = "unknown"
	}
	m.backendFailures.WithLabelValues(m.service, backend).Inc()
}

func (m *HTTPServerMetrics) ObserveVerdict(kind domain.VerdictKind) {
	m.verdictsTotal.WithLabelValues(m.service, string(kind)).Inc()
}

func (m *HTTPServerMetrics) ObserveInference(model string, degraded bool) {
	if model == "" {
		model = "unknown"
	}
	m.inferenceTotal.WithLabelValues(m.service, model).Inc()
	if degraded {
		m.inferenceDegraded.WithLabelValues(m.service, model).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
