package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orderflow_orders_submitted_total",
		Help: "Orders accepted by the write API.",
	})

	MessagesHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orderflow_messages_handled_total",
		Help: "Messages processed to completion, per consumer group.",
	}, []string{"group"})

	MessagesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orderflow_messages_failed_total",
		Help: "Handler attempts that returned an error, per consumer group.",
	}, []string{"group"})

	MessagesDeadLettered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orderflow_messages_dead_lettered_total",
		Help: "Messages diverted to the dead-letter topic after exhausting retries.",
	}, []string{"group"})

	DuplicatesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orderflow_duplicates_skipped_total",
		Help: "Redeliveries suppressed by the idempotency fast path.",
	}, []string{"group"})
)
