// Package metrics exposes Prometheus instrumentation for script executions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus metrics for the sandbox. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Executions       *prometheus.CounterVec
	ExecutionSeconds prometheus.Histogram
	Violations       *prometheus.CounterVec
	Commands         *prometheus.CounterVec
	OutputTruncated  prometheus.Counter
}

// New creates and registers metrics on reg.
// Returns nil if reg is nil.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		Executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scriptguard",
			Subsystem: "sandbox",
			Name:      "executions_total",
			Help:      "Script executions by outcome (success, runtime, timeout, syntax, security).",
		}, []string{"outcome"}),
		ExecutionSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scriptguard",
			Subsystem: "sandbox",
			Name:      "execution_duration_seconds",
			Help:      "Wall time of script executions that reached the interpreter.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),
		Violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scriptguard",
			Subsystem: "validator",
			Name:      "violations_total",
			Help:      "Security violations found by the validator, by kind.",
		}, []string{"kind"}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scriptguard",
			Subsystem: "bridge",
			Name:      "commands_total",
			Help:      "Bridge commands forwarded to the host, by namespace and status.",
		}, []string{"namespace", "status"}),
		OutputTruncated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scriptguard",
			Subsystem: "sandbox",
			Name:      "output_truncated_total",
			Help:      "Executions whose output hit the line cap.",
		}),
	}

	reg.MustRegister(
		m.Executions,
		m.ExecutionSeconds,
		m.Violations,
		m.Commands,
		m.OutputTruncated,
	)

	return m
}

// ObserveExecution records one execution outcome and its duration.
func (m *Metrics) ObserveExecution(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Executions.WithLabelValues(outcome).Inc()
	if seconds > 0 {
		m.ExecutionSeconds.Observe(seconds)
	}
}

// ObserveViolation records one validator violation.
func (m *Metrics) ObserveViolation(kind string) {
	if m == nil {
		return
	}
	m.Violations.WithLabelValues(kind).Inc()
}

// ObserveCommand records one bridge command.
func (m *Metrics) ObserveCommand(namespace, status string) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(namespace, status).Inc()
}

// ObserveTruncation records an execution whose output was capped.
func (m *Metrics) ObserveTruncation() {
	if m == nil {
		return
	}
	m.OutputTruncated.Inc()
}

// Handler serves reg in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
