package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the bridge's Prometheus collectors.
//
// Usage:
//
//	reg := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(reg)
//	metrics.RecordTurn("app_mention", "responded")
//	metrics.RecordInvocation("success", time.Since(start))
type Metrics struct {
	// EventsReceived counts Slack events delivered to the bridge.
	// Labels: type (app_mention|message)
	EventsReceived *prometheus.CounterVec

	// TurnCounter counts finished turns.
	// Labels: event, outcome (ignored|prompted|responded|failed)
	TurnCounter *prometheus.CounterVec

	// InvocationCounter counts CLI runs by result.
	// Labels: result (success|spawn_failure|process_failure|canceled|internal)
	InvocationCounter *prometheus.CounterVec

	// InvocationDuration measures CLI run time in seconds.
	// Labels: result
	// Buckets: 1s, 2s, 5s, 10s, 30s, 60s, 120s, 300s, 600s
	InvocationDuration *prometheus.HistogramVec

	// ActiveSessions is the number of threads bound to a CLI session.
	ActiveSessions prometheus.Gauge

	// SlackAPIErrors counts failed Web API calls.
	// Labels: method (post|delete|auth)
	SlackAPIErrors *prometheus.CounterVec

	// HandlerPanics counts recovered panics in event handlers.
	HandlerPanics prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claudebridge_events_received_total",
				Help: "Total number of Slack events received by type",
			},
			[]string{"type"},
		),

		TurnCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claudebridge_turns_total",
				Help: "Total number of turns by triggering event and outcome",
			},
			[]string{"event", "outcome"},
		),

		InvocationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claudebridge_invocations_total",
				Help: "Total number of Claude CLI invocations by result",
			},
			[]string{"result"},
		),

		InvocationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "claudebridge_invocation_duration_seconds",
				Help:    "Duration of Claude CLI invocations in seconds",
				Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"result"},
		),

		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "claudebridge_active_sessions",
				Help: "Number of Slack threads bound to a Claude session",
			},
		),

		SlackAPIErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claudebridge_slack_api_errors_total",
				Help: "Total number of failed Slack Web API calls by method",
			},
			[]string{"method"},
		),

		HandlerPanics: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "claudebridge_handler_panics_total",
				Help: "Total number of panics recovered in event handlers",
			},
		),
	}
}

// EventReceived increments the received counter for an event type.
func (m *Metrics) EventReceived(eventType string) {
	if m == nil {
		return
	}
	m.EventsReceived.WithLabelValues(eventType).Inc()
}

// RecordTurn counts a finished turn.
func (m *Metrics) RecordTurn(event, outcome string) {
	if m == nil {
		return
	}
	m.TurnCounter.WithLabelValues(event, outcome).Inc()
}

// RecordInvocation records one CLI run.
//
// Example:
//
//	start := time.Now()
//	// ... run the CLI ...
//	metrics.RecordInvocation("success", time.Since(start))
func (m *Metrics) RecordInvocation(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.InvocationCounter.WithLabelValues(result).Inc()
	m.InvocationDuration.WithLabelValues(result).Observe(elapsed.Seconds())
}

// SetActiveSessions sets the bound session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

// RecordSlackError counts a failed Web API call.
func (m *Metrics) RecordSlackError(method string) {
	if m == nil {
		return
	}
	m.SlackAPIErrors.WithLabelValues(method).Inc()
}

// RecordPanic counts a recovered handler panic.
func (m *Metrics) RecordPanic() {
	if m == nil {
		return
	}
	m.HandlerPanics.Inc()
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
