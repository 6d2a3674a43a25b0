// Package metrics defines the Prometheus collectors shared across stages.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesPublished counts messages put onto the backbone per topic.
	MessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ape_messages_published_total",
			Help: "Messages published to the messaging backbone",
		},
		[]string{"topic"},
	)

	// MessagesConsumed counts messages read from the backbone per topic.
	MessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ape_messages_consumed_total",
			Help: "Messages consumed from the messaging backbone",
		},
		[]string{"topic"},
	)

	// HandlerFailures counts handler errors that left a message pending.
	HandlerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ape_handler_failures_total",
			Help: "Stage handler failures leaving messages pending",
		},
		[]string{"topic"},
	)

	// StageDuration observes wall-clock time per stage invocation.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ape_stage_duration_seconds",
			Help:    "Stage handler latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// DroppedRows counts malformed artifact rows dropped by the query layer.
	DroppedRows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ape_query_dropped_rows_total",
			Help: "Malformed artifact rows dropped during the read-time merge",
		},
	)

	// SkippedRules counts filter rules rejected at evaluation time.
	SkippedRules = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ape_skipped_rules_total",
			Help: "Filter rules skipped because they failed to compile",
		},
	)

	// ExclusionsSubmitted counts channels accepted by the platform
	// exclusion list.
	ExclusionsSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ape_exclusions_submitted_total",
			Help: "Placements accepted onto the shared exclusion list",
		},
	)

	// ExclusionsRejected counts channels the platform rejected.
	ExclusionsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ape_exclusions_rejected_total",
			Help: "Placements rejected by the shared exclusion list",
		},
	)
)
