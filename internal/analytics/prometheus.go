// Package analytics collects routing decisions into a bounded in-memory
// buffer, flushes them transactionally to the analytics event table, and
// serves the summary/usage/breakdown read paths the dashboard and budget
// manager consume.
package analytics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "modelgate"

var (
	RoutingDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_decisions_total",
			Help:      "Total number of routing decisions made, by profile and selected model",
		},
		[]string{"profile", "model", "degraded"},
	)

	RoutingCost = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_cost_total",
			Help:      "Total estimated cost attributed to routing decisions",
		},
		[]string{"profile", "model"},
	)

	RoutingLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "routing_decision_latency_seconds",
			Help:      "Time spent making a routing decision (scoring + circuit check)",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"profile"},
	)

	BufferDroppedEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_buffer_dropped_events_total",
			Help:      "Routing events dropped because the in-memory buffer was full",
		},
	)
)
