package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Booking related metrics
	Bookings         *prometheus.CounterVec
	Responses        *prometheus.CounterVec
	BookingLatency   *prometheus.HistogramVec
	AvailabilitySets prometheus.Counter

	// Reminder metrics
	RemindersSent     *prometheus.CounterVec
	RemindersFailed   *prometheus.CounterVec
	RemindersSkipped  *prometheus.CounterVec
	SchedulerTicks    *prometheus.CounterVec
	SchedulerDuration *prometheus.HistogramVec
	ReminderQueueSize prometheus.Gauge

	// Notification metrics
	Notifications *prometheus.CounterVec

	// Outbox related metrics
	OutboxEventsProcessed   prometheus.Counter
	OutboxEventsFailed      prometheus.Counter
	OutboxProcessingLatency prometheus.Histogram
	OutboxRetries           *prometheus.CounterVec

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
}

// NewMetrics creates and registers all application metrics on reg. Passing
// prometheus.DefaultRegisterer exposes them on the default /metrics handler.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Bookings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Booking attempts by result",
		}, []string{"result"}),
		Responses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_responses_total",
			Help:      "Doctor responses by decision and result",
		}, []string{"decision", "result"}),
		BookingLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transaction_duration_seconds",
			Help:      "Duration of booking and response transactions",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"operation"}),
		AvailabilitySets: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_replacements_total",
			Help:      "Number of times a doctor replaced a day's schedule",
		}),

		RemindersSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_sent_total",
			Help:      "Reminders dispatched and recorded in the ledger",
		}, []string{"tag", "source"}),
		RemindersFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_failed_total",
			Help:      "Reminder dispatch failures",
		}, []string{"tag", "source"}),
		RemindersSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_skipped_total",
			Help:      "Reminder jobs dropped because the ledger already had the tag or the appointment changed",
		}, []string{"tag", "reason"}),
		SchedulerTicks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_ticks_total",
			Help:      "Scheduler ticks by job and result",
		}, []string{"job", "result"}),
		SchedulerDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scheduler_tick_duration_seconds",
			Help:      "Time spent in a scheduler tick",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		ReminderQueueSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reminder_jobs_due",
			Help:      "Due reminder jobs picked up in the last batch",
		}),

		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification dispatches by kind and status",
		}, []string{"kind", "status"}),

		OutboxEventsProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_processed_total",
			Help:      "Total number of successfully processed outbox events",
		}),
		OutboxEventsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_failed_total",
			Help:      "Total number of failed outbox events",
		}),
		OutboxProcessingLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbox_processing_duration_seconds",
			Help:      "Time spent processing outbox events",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		OutboxRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_retry_attempts_total",
			Help:      "Total number of retry attempts for outbox events",
		}, []string{"event_type"}),

		DatabaseOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
	}
}

// NewNop registers on a private registry. Handy for tests and tools that
// never expose /metrics.
func NewNop() *Metrics {
	return NewMetrics(prometheus.NewRegistry(), "test")
}
