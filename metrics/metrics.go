package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for ConversionEvents.
const (
	OutcomeSent             = "sent"
	OutcomeSkippedDuplicate = "skipped_duplicate"
	OutcomeSuppressed       = "suppressed"
	OutcomeFailed           = "failed"
)

// Prometheus metrics for conversion tracking
var (
	ConversionEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversion_events_total",
			Help: "Conversion events handled, by channel, event name and outcome",
		},
		[]string{"channel", "event", "outcome"},
	)

	ConversionSendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conversion_send_duration_seconds",
			Help:    "Duration of conversion API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event"},
	)

	OrderStatusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_status_transitions_total",
			Help: "Order status changes applied, by target status",
		},
		[]string{"status"},
	)
)

var registerOnce sync.Once

// Register registers all Prometheus metrics with the default registry.
// Calling it more than once is harmless.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(ConversionEvents)
		prometheus.MustRegister(ConversionSendDuration)
		prometheus.MustRegister(OrderStatusTransitions)
	})
}

// ObserveConversion counts one conversion attempt.
func ObserveConversion(channel, event, outcome string) {
	ConversionEvents.WithLabelValues(channel, event, outcome).Inc()
}
