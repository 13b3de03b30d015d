// Package metrics defines the runtime's Prometheus surface: a private
// registry plus a fixed set of counters and histograms, registered once
// at construction rather than against the global default registry. The
// orchestrator updates ProviderRestarts and ModeTransitions; no subsystem
// updates the other collectors.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups every collector the runtime exposes, registered against
// a private registry rather than the global default so embedding this
// module alongside others never collides on metric names.
type Metrics struct {
	registry *prometheus.Registry

	ProviderRestarts    *prometheus.CounterVec
	ProviderCallErrors  *prometheus.CounterVec
	CallsTotal          *prometheus.CounterVec
	CallLatencySeconds  *prometheus.HistogramVec
	PollDurationSeconds *prometheus.HistogramVec
	EventsDropped       prometheus.Counter
	BTTicks             prometheus.Counter
	BTErrors            prometheus.Counter
	ModeTransitions     *prometheus.CounterVec
}

// New constructs and registers the full metric set under namespace.
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		ProviderRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "provider_restarts_total", Help: "Total provider restart attempts.",
		}, []string{"provider_id"}),
		ProviderCallErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "provider_call_errors_total", Help: "Total provider call errors by failure class.",
		}, []string{"provider_id", "class"}),
		CallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "calls_total", Help: "Total device function calls by result code.",
		}, []string{"function_id", "code"}),
		CallLatencySeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "call_latency_seconds", Help: "Call Router dispatch latency.",
		}, []string{"function_id"}),
		PollDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "poll_duration_seconds", Help: "State Cache poll round-trip duration.",
		}, []string{"provider_id"}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_dropped_total", Help: "Total events dropped due to subscriber queue overflow.",
		}),
		BTTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bt_ticks_total", Help: "Total BT Runtime ticks executed.",
		}),
		BTErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bt_errors_total", Help: "Total BT Runtime tick errors.",
		}),
		ModeTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "mode_transitions_total", Help: "Total Mode Manager transitions.",
		}, []string{"from", "to"}),
	}

	registry.MustRegister(
		m.ProviderRestarts, m.ProviderCallErrors, m.CallsTotal, m.CallLatencySeconds,
		m.PollDurationSeconds, m.EventsDropped, m.BTTicks, m.BTErrors, m.ModeTransitions,
	)
	return m
}

// Registry exposes the private registry for wiring an HTTP /metrics
// handler in cmd/anolisd.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
