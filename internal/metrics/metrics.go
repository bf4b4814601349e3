package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics for the notification pipeline
var (
	NotificationsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of automatic notifications confirmed sent, by category",
		},
		[]string{"category"},
	)

	NotificationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_failures_total",
			Help: "Total number of automatic notifications that failed to send, by category",
		},
		[]string{"category"},
	)

	DispatchPassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_pass_duration_seconds",
			Help:    "Duration of a full dispatch pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	InboundMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbound_messages_total",
			Help: "Total number of inbound customer messages, by outcome",
		},
		[]string{"outcome"},
	)

	ManualMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "manual_messages_total",
			Help: "Total number of operator messages sent",
		},
	)

	TrackingLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_lookups_total",
			Help: "Total number of carrier lookups, by result",
		},
		[]string{"result"},
	)

	SessionTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_transitions_total",
			Help: "Total number of messaging session transitions, by target status",
		},
		[]string{"status"},
	)

	RealtimeObservers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_observers",
			Help: "Number of connected dashboard observers",
		},
	)

	RealtimeDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_dropped_observers_total",
			Help: "Total number of observers dropped because their send queue was full",
		},
	)
)

var registerOnce sync.Once

// Register registers all Prometheus metrics
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(NotificationsSentTotal)
		prometheus.MustRegister(NotificationFailuresTotal)
		prometheus.MustRegister(DispatchPassDuration)
		prometheus.MustRegister(InboundMessagesTotal)
		prometheus.MustRegister(ManualMessagesTotal)
		prometheus.MustRegister(TrackingLookupsTotal)
		prometheus.MustRegister(SessionTransitionsTotal)
		prometheus.MustRegister(RealtimeObservers)
		prometheus.MustRegister(RealtimeDroppedTotal)
	})
}
