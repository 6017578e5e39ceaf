package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// Run metrics
	RunsTotal   *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec
	RunsActive  prometheus.Gauge

	// Step metrics
	StepsTotal   *prometheus.CounterVec
	RetriesTotal *prometheus.CounterVec

	// Tool metrics
	ToolExecutionsTotal      *prometheus.CounterVec
	ToolExecutionDuration    *prometheus.HistogramVec
	ToolExecutionErrorsTotal *prometheus.CounterVec

	// Event metrics
	EventsTotal     *prometheus.CounterVec
	SinkErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skagent_runs_total",
				Help: "Total number of plan runs by terminal status",
			},
			[]string{"status"},
		),
		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "skagent_run_duration_seconds",
				Help:    "Duration of plan runs in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		RunsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "skagent_runs_active",
				Help: "Number of runs currently executing",
			},
		),

		StepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skagent_steps_total",
				Help: "Total number of step attempts by kind and status",
			},
			[]string{"kind", "status"},
		),
		RetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skagent_step_retries_total",
				Help: "Total number of scheduled step retries",
			},
			[]string{"kind"},
		),

		ToolExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skagent_tool_executions_total",
				Help: "Total number of tool executions",
			},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "skagent_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool_name"},
		),
		ToolExecutionErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skagent_tool_execution_errors_total",
				Help: "Total number of tool execution errors by code",
			},
			[]string{"tool_name", "code"},
		),

		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skagent_run_events_total",
				Help: "Total number of run events emitted",
			},
			[]string{"type"},
		),
		SinkErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skagent_run_event_sink_errors_total",
				Help: "Total number of failed event sink writes",
			},
			[]string{"type"},
		),
	}

	m.registry.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.RunsActive,
		m.StepsTotal,
		m.RetriesTotal,
		m.ToolExecutionsTotal,
		m.ToolExecutionDuration,
		m.ToolExecutionErrorsTotal,
		m.EventsTotal,
		m.SinkErrorsTotal,
	)

	return m
}

// ObserveRun records a finished run. Safe on a nil receiver.
func (m *Metrics) ObserveRun(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.WithLabelValues(status).Observe(d.Seconds())
}

// RunStarted increments the active gauge and returns the matching decrement
func (m *Metrics) RunStarted() func() {
	if m == nil {
		return func() {}
	}
	m.RunsActive.Inc()
	return m.RunsActive.Dec
}

// ObserveStep records one step attempt
func (m *Metrics) ObserveStep(kind, status string) {
	if m == nil {
		return
	}
	m.StepsTotal.WithLabelValues(kind, status).Inc()
}

// ObserveRetry records a scheduled retry
func (m *Metrics) ObserveRetry(kind string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(kind).Inc()
}

// ObserveTool records one tool invocation. code is empty on success.
func (m *Metrics) ObserveTool(tool string, success bool, code string, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
		m.ToolExecutionErrorsTotal.WithLabelValues(tool, code).Inc()
	}
	m.ToolExecutionsTotal.WithLabelValues(tool, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// ObserveEvent records an emitted run event
func (m *Metrics) ObserveEvent(eventType string, sinkErr error) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(eventType).Inc()
	if sinkErr != nil {
		m.SinkErrorsTotal.WithLabelValues(eventType).Inc()
	}
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
