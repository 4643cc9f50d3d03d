package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the Prometheus metrics exposed at /metrics.
type Metrics struct {
	// BehaviorFirings counts behavior executions.
	// Labels: name, status (success|error)
	BehaviorFirings *prometheus.CounterVec

	// MessagesProcessed counts messages through the pipeline.
	// Labels: platform, action (recorded|notified|drafted|sent)
	MessagesProcessed *prometheus.CounterVec

	// ProcessingDuration measures end-to-end message processing latency.
	// Labels: platform
	ProcessingDuration *prometheus.HistogramVec

	// LLMRequests counts completion provider calls.
	// Labels: provider, status (success|error)
	LLMRequests *prometheus.CounterVec

	// FeedbackReceived counts feedback submissions by kind.
	// Labels: kind (approved|rejected|edited|rating)
	FeedbackReceived *prometheus.CounterVec

	// PreferenceUpdates counts learned preference upserts.
	PreferenceUpdates prometheus.Counter

	// DispatcherDropped counts events dropped for slow subscribers.
	DispatcherDropped prometheus.Counter

	// Subscribers is the current number of push-channel subscribers.
	Subscribers prometheus.Gauge
}

// NewMetrics creates and registers the metric set with reg. Pass a
// fresh registry in tests to avoid duplicate-registration panics; pass
// prometheus.DefaultRegisterer in the server.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BehaviorFirings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aide_behavior_firings_total",
				Help: "Behavior executions by name and status.",
			},
			[]string{"name", "status"},
		),
		MessagesProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aide_messages_processed_total",
				Help: "Messages processed by platform and action taken.",
			},
			[]string{"platform", "action"},
		),
		ProcessingDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aide_message_processing_seconds",
				Help:    "End-to-end message processing latency.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"platform"},
		),
		LLMRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aide_llm_requests_total",
				Help: "Completion provider calls by provider and status.",
			},
			[]string{"provider", "status"},
		),
		FeedbackReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aide_feedback_total",
				Help: "Feedback submissions by kind.",
			},
			[]string{"kind"},
		),
		PreferenceUpdates: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "aide_preference_updates_total",
				Help: "Learned preference upserts.",
			},
		),
		DispatcherDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "aide_dispatcher_dropped_total",
				Help: "Push events dropped for slow subscribers.",
			},
		),
		Subscribers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "aide_push_subscribers",
				Help: "Connected push-channel subscribers.",
			},
		),
	}
}
