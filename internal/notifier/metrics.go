package notifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notiphier_messages_sent_total",
			Help: "Total Slack messages produced, by object type.",
		},
		[]string{"object_type"},
	)
	eventsSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notiphier_events_skipped_total",
			Help: "Transactions that produced no message, by object type.",
		},
		[]string{"object_type"},
	)
	requestFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notiphier_request_failures_total",
			Help: "Firehose requests aborted into the error-report path.",
		},
	)
)
