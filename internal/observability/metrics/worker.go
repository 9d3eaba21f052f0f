package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	service  string
	registry *prometheus.Registry

	persistTotal    *prometheus.CounterVec
	persistDuration *prometheus.HistogramVec
	persistInFlight prometheus.Gauge
	eventLag        prometheus.Histogram
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	persistTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "query_persist_total",
			Help:      "Total persisted query history records by status.",
		},
		[]string{"service", "status"},
	)
	persistDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "query_persist_duration_seconds",
			Help:      "Query history persistence duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	persistInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "query_persist_in_flight",
			Help:      "Number of in-flight query history writes.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	eventLag := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "event_lag_seconds",
			Help:      "Delay between research completion and history persistence start.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(persistTotal, persistDuration, persistInFlight, eventLag)

	return &WorkerMetrics{
		service:         service,
		registry:        registry,
		persistTotal:    persistTotal,
		persistDuration: persistDuration,
		persistInFlight: persistInFlight,
		eventLag:        eventLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartPersist() {
	m.persistInFlight.Inc()
}

func (m *WorkerMetrics) FinishPersist(duration time.Duration, err error) {
	m.persistInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.persistTotal.WithLabelValues(m.service, status).Inc()
	m.persistDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveEventLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.eventLag.Observe(lag.Seconds())
}
