package scheduler

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcomes as reported in tapline_runs_total.
const (
	OutcomeSuccess  = "success"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
	OutcomeCanceled = "canceled"
)

// Metrics are the scheduler's Prometheus collectors.
type Metrics struct {
	Registry    *prometheus.Registry
	RunsTotal   *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec
	CircuitOpen *prometheus.GaugeVec
}

// NewMetrics registers the scheduler collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tapline_runs_total",
			Help: "Scheduled pipeline runs by outcome.",
		}, []string{"schedule", "status"}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tapline_run_duration_seconds",
			Help:    "Wall time of scheduled pipeline runs.",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600, 4 * 3600},
		}, []string{"schedule"}),
		CircuitOpen: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tapline_schedule_circuit_open",
			Help: "1 while a schedule's circuit breaker is open.",
		}, []string{"schedule"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
