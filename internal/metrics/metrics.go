// Package metrics registers the Prometheus collectors shared by the coach
// services.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "interview_coach"

var (
	// MessagesHandled counts inbound chat content items. Labels: kind
	MessagesHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chat",
		Name:      "messages_total",
		Help:      "Inbound content items handled, by kind",
	}, []string{"kind"})

	// ChatRequests counts inbound envelopes. Labels: transport (ws, http), outcome
	ChatRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chat",
		Name:      "envelopes_total",
		Help:      "Inbound envelopes, by transport and outcome",
	}, []string{"transport", "outcome"})

	// Fallbacks counts deterministic fallbacks. Labels: component, reason
	Fallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fallbacks_total",
		Help:      "Generation or scoring fallbacks, by reason",
	}, []string{"component", "reason"})

	// Dispatches counts evaluation dispatches. Labels: outcome (sent, failed, disabled)
	Dispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "evaluation",
		Name:      "dispatches_total",
		Help:      "Evaluation dispatches, by outcome",
	}, []string{"outcome"})

	// Correlations counts how evaluation responses were matched to a
	// session. Labels: path (request_id, identity, default, stale)
	Correlations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "evaluation",
		Name:      "correlations_total",
		Help:      "Evaluation responses resolved, by correlation path",
	}, []string{"path"})

	// ReportsEmitted counts final reports. Labels: trigger (barrier, stop, deadline)
	ReportsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "report",
		Name:      "emitted_total",
		Help:      "Reports sent to candidates, by trigger",
	}, []string{"trigger"})

	// GenerationLatency measures LLM calls. Labels: purpose, status
	GenerationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "llm",
		Name:      "latency_seconds",
		Help:      "Generation round-trip latency in seconds",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"purpose", "status"})
)

// ObserveGeneration records a generation call that started at start.
func ObserveGeneration(purpose string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	GenerationLatency.WithLabelValues(purpose, status).Observe(time.Since(start).Seconds())
}
