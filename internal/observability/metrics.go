package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the explicit observability handle passed to every
// component that emits measurements. No global registry: each process
// owns exactly one instance, wired through constructors.
type Metrics struct {
	registry *prometheus.Registry

	operations      *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	gatewayRequests *prometheus.CounterVec
	reconciliation  *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_operations_total",
				Help: "Payment operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		processDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "payment_process_duration_seconds",
				Help:    "Duration of payment processing by method and final status",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status"},
		),
		gatewayRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_requests_total",
				Help: "Outbound gateway calls by gateway and outcome",
			},
			[]string{"gateway", "outcome"},
		),
		reconciliation: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconciliation_runs_total",
				Help: "Reconciliation runs by outcome",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		m.operations,
		m.processDuration,
		m.gatewayRequests,
		m.reconciliation,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) RecordOperation(operation, outcome string) {
	m.operations.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) ObserveProcessDuration(method, status string, d time.Duration) {
	m.processDuration.WithLabelValues(method, status).Observe(d.Seconds())
}

func (m *Metrics) RecordGatewayRequest(gateway, outcome string) {
	m.gatewayRequests.WithLabelValues(gateway, outcome).Inc()
}

func (m *Metrics) RecordReconciliationRun(outcome string) {
	m.reconciliation.WithLabelValues(outcome).Inc()
}

// Handler exposes the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
