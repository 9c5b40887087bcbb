package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GateDecisionsTotal counts access gate verdicts by required level and outcome.
	GateDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bookden",
		Subsystem: "gate",
		Name:      "decisions_total",
		Help:      "Total access gate decisions by required level and verdict.",
	}, []string{"level", "verdict"})

	// WebhookRequestsTotal counts billing webhook requests by event type and status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bookden",
		Subsystem: "billing",
		Name:      "webhook_requests_total",
		Help:      "Total billing webhook requests by event type and HTTP status.",
	}, []string{"event_type", "status"})

	// WebhookDuration tracks billing webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bookden",
		Subsystem: "billing",
		Name:      "webhook_duration_seconds",
		Help:      "Billing webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// SubscriptionTransitionsTotal counts applied subscription state transitions.
	SubscriptionTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bookden",
		Subsystem: "billing",
		Name:      "subscription_transitions_total",
		Help:      "Applied subscription transitions by target state.",
	}, []string{"to_state"})

	// StaleEventsTotal counts billing events dropped as stale or duplicate.
	StaleEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bookden",
		Subsystem: "billing",
		Name:      "stale_events_total",
		Help:      "Billing events accepted as no-ops because their sequence was not newer.",
	})

	// SubscriptionsByStatus tracks the number of subscriptions in each status.
	SubscriptionsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "bookden",
		Subsystem: "billing",
		Name:      "subscriptions_by_status",
		Help:      "Number of subscriptions by stored status.",
	}, []string{"status"})
)
