package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BookingCreateDuration tracks the latency of the place-booking path
	BookingCreateDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "booking_create_duration_seconds",
			Help: "Duration of booking creation requests in seconds",
			Buckets: []float64{
				0.001, // 1ms
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
				5.0,   // 5s
			},
		},
		[]string{"status"}, // created, slot_conflict or failure
	)

	// QuoteDuration tracks the latency of pricing quotes
	QuoteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "pricing_quote_duration_seconds",
			Help: "Duration of pricing quote evaluations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	// SlotConflicts counts exclusivity violations surfaced at commit time
	SlotConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "booking_slot_conflicts_total",
			Help: "Number of bookings rejected because the slot key was occupied",
		},
	)

	// PaymentConfirmations counts webhook-driven payment confirmations by outcome
	PaymentConfirmations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_payment_confirmations_total",
			Help: "Number of payment confirmations processed, by outcome",
		},
		[]string{"outcome"}, // confirmed, replay, rejected
	)

	// WaitlistNotifications counts entries flagged for notification on slot release
	WaitlistNotifications = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waitlist_notifications_total",
			Help: "Number of waitlist entries flagged notified after a cancellation",
		},
	)
)

// RecordBookingCreateDuration records the duration of a booking creation request
func RecordBookingCreateDuration(status string, duration float64) {
	BookingCreateDuration.WithLabelValues(status).Observe(duration)
}

// RecordQuoteDuration records the duration of a pricing quote evaluation
func RecordQuoteDuration(status string, duration float64) {
	QuoteDuration.WithLabelValues(status).Observe(duration)
}
