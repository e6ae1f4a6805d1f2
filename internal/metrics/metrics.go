// Package metrics exports recdb and HTTP server metrics to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/calvinalkan/recdb/pkg/recdb"
)

// Metrics holds the collectors. It implements [recdb.Observer].
type Metrics struct {
	registry *prometheus.Registry

	ops       *prometheus.CounterVec
	opLatency *prometheus.HistogramVec
	lockWait  prometheus.Histogram
	locksHeld prometheus.Gauge
	requests  *prometheus.CounterVec
}

// New registers all collectors on a fresh registry, plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recdb",
			Name:      "operations_total",
			Help:      "Record operations by operation and result.",
		}, []string{"op", "result"}),
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "recdb",
			Name:      "operation_duration_seconds",
			Help:      "Record operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"op"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "recdb",
			Name:      "lock_wait_seconds",
			Help:      "Time Lock calls spent blocked.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		locksHeld: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "recdb",
			Name:      "locks_held",
			Help:      "Rows currently locked.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recdb",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
	}

	m.registry.MustRegister(
		m.ops, m.opLatency, m.lockWait, m.locksHeld, m.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// OpDone implements [recdb.Observer].
func (m *Metrics) OpDone(op string, err error, elapsed time.Duration) {
	m.ops.WithLabelValues(op, Result(err)).Inc()
	m.opLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// LockWaited implements [recdb.Observer].
func (m *Metrics) LockWaited(d time.Duration) {
	m.lockWait.Observe(d.Seconds())
}

// LocksHeld implements [recdb.Observer].
func (m *Metrics) LocksHeld(n int) {
	m.locksHeld.Set(float64(n))
}

// RequestDone counts one HTTP request.
func (m *Metrics) RequestDone(route string, code int) {
	m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Result maps an operation error to a low-cardinality label value.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, recdb.ErrRecordNotFound):
		return "not_found"
	case errors.Is(err, recdb.ErrLockMismatch):
		return "lock_mismatch"
	case errors.Is(err, recdb.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, recdb.ErrClosed):
		return "closed"
	case errors.Is(err, recdb.ErrIO):
		return "io"
	}

	return "error"
}

var _ recdb.Observer = (*Metrics)(nil)
