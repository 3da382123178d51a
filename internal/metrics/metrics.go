// Package metrics holds the Prometheus collectors shared by the gateway and the dispatcher.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DeliveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sms_delivery_attempts_total",
		Help: "Outbound SMS attempts partitioned by outcome.",
	}, []string{"outcome"})

	CarrierLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sms_carrier_submit_seconds",
		Help:    "Latency of carrier submit calls.",
		Buckets: prometheus.DefBuckets,
	})

	DispatchedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_messages_total",
		Help: "Due messages processed by the dispatcher, partitioned by resulting status.",
	}, []string{"result"})

	DispatchCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_cycle_duration_seconds",
		Help:    "Duration of one dispatch cycle.",
		Buckets: prometheus.DefBuckets,
	})

	DispatchCycleErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_cycle_errors_total",
		Help: "Dispatch cycles aborted before processing messages.",
	})

	RemindersScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reminders_scheduled_total",
		Help: "Reminder messages inserted as pending.",
	})

	RemindersSuperseded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reminders_superseded_total",
		Help: "Pending messages canceled by a newer service record.",
	})
)
