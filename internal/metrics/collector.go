// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector holds the prometheus instruments of the control plane.
type Collector struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	turnsTotal    *prometheus.CounterVec
	turnDuration  *prometheus.HistogramVec
	handoffsTotal *prometheus.CounterVec

	traceAppendsTotal *prometheus.CounterVec
	sandboxOpsTotal   *prometheus.CounterVec

	sessionsActive prometheus.Gauge

	registry *prometheus.Registry
	logger   *zap.Logger
}

// NewCollector creates a collector with its own registry so tests can
// instantiate collectors independently.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	c := &Collector{
		registry: registry,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.turnsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of agent turns",
		},
		[]string{"agent", "status"},
	)

	c.turnDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Agent turn duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"agent"},
	)

	c.handoffsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handoffs_total",
			Help:      "Total number of committed main-agent hand-offs",
		},
		[]string{"from", "to"},
	)

	c.traceAppendsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trace_appends_total",
			Help:      "Total number of trace log appends",
		},
		[]string{"kind", "status"},
	)

	c.sandboxOpsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sandbox_operations_total",
			Help:      "Total number of sandbox lifecycle operations",
		},
		[]string{"operation", "status"},
	)

	c.sessionsActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live session orchestrators",
		},
	)

	return c
}

// Registry exposes the backing registry for the metrics HTTP handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordHTTPRequest records one served HTTP request.
func (c *Collector) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordTurn records one completed agent turn.
func (c *Collector) RecordTurn(agent string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.turnsTotal.WithLabelValues(agent, status).Inc()
	c.turnDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

// RecordHandoff records one committed hand-off.
func (c *Collector) RecordHandoff(from, to string) {
	c.handoffsTotal.WithLabelValues(from, to).Inc()
}

// RecordTraceAppend records one trace log append attempt.
func (c *Collector) RecordTraceAppend(kind string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.traceAppendsTotal.WithLabelValues(kind, status).Inc()
}

// RecordSandboxOp records one sandbox lifecycle operation.
func (c *Collector) RecordSandboxOp(operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.sandboxOpsTotal.WithLabelValues(operation, status).Inc()
}

// SessionOpened increments the live session gauge.
func (c *Collector) SessionOpened() { c.sessionsActive.Inc() }

// SessionClosed decrements the live session gauge.
func (c *Collector) SessionClosed() { c.sessionsActive.Dec() }
