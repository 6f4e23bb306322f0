package daemon

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics backs the §4.2 Metrics request and the admin HTTP surface's
// /metrics route (SPEC_FULL.md Domain Stack: "counters for requests by
// message type, histograms for transaction/search latency, and a gauge
// for in-flight batch concurrency").
type Metrics struct {
	Registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	batchInFlight   prometheus.Gauge

	mu      sync.Mutex
	byKind  map[string]int64
}

// NewMetrics creates a fresh Prometheus registry and the daemon's
// request counters/histograms on it, rather than registering against the
// global default registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "omgd",
				Subsystem: "daemon",
				Name:      "requests_total",
				Help:      "Total daemon requests handled, by message kind and outcome.",
			},
			[]string{"kind", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "omgd",
				Subsystem: "daemon",
				Name:      "request_duration_seconds",
				Help:      "Duration of daemon request handling, by message kind.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"kind"},
		),
		batchInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "omgd",
				Subsystem: "daemon",
				Name:      "batch_inflight",
				Help:      "Current number of in-flight batch sub-requests.",
			},
		),
		byKind: make(map[string]int64),
	}

	registry.MustRegister(m.requestsTotal, m.requestDuration, m.batchInFlight)
	return m
}

// ObserveRequest records one completed request's latency and outcome.
func (m *Metrics) ObserveRequest(kind string, duration time.Duration, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	m.requestsTotal.WithLabelValues(kind, status).Inc()
	m.requestDuration.WithLabelValues(kind).Observe(duration.Seconds())

	m.mu.Lock()
	m.byKind[kind]++
	m.mu.Unlock()
}

// IncBatchInFlight and DecBatchInFlight track the in-flight batch gauge
// around a sub-request's execution.
func (m *Metrics) IncBatchInFlight() { m.batchInFlight.Inc() }
func (m *Metrics) DecBatchInFlight() { m.batchInFlight.Dec() }

// Snapshot returns a JSON-friendly view of per-kind request counts for
// the §4.2 Metrics request (the full histogram/counter detail is only
// available via the Prometheus /metrics admin route).
func (m *Metrics) Snapshot() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]int64, len(m.byKind))
	for k, v := range m.byKind {
		out[k] = v
	}
	return out
}
