package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BillingMetrics holds Prometheus metrics for the billing run.
type BillingMetrics struct {
	// Run lifecycle
	RunsStarted   prometheus.Counter
	RunsCompleted prometheus.Counter
	RunsFailed    prometheus.Counter
	RunDuration   prometheus.Histogram

	// Per-customer processing
	CustomersProcessed prometheus.Counter
	CustomersSkipped   *prometheus.CounterVec

	// Orders
	OrdersPlaced   prometheus.Counter
	OrdersFailed   prometheus.Counter
	OrderItemCount prometheus.Histogram

	// Installments
	InstallmentsSuccess prometheus.Counter
	InstallmentsFailed  prometheus.Counter

	// Subscription transitions
	SubscriptionsAdvanced    prometheus.Counter
	SubscriptionsDeactivated prometheus.Counter
	SubscriptionsCanceled    prometheus.Counter

	// Reminders
	RemindersDispatched    prometheus.Counter
	ReminderDispatchFailed prometheus.Counter
	SubscriptionsReminded  prometheus.Counter
}

// NewBillingMetrics creates and registers all billing metrics on the given
// registerer (prometheus.DefaultRegisterer when nil).
func NewBillingMetrics(namespace string, reg prometheus.Registerer) *BillingMetrics {
	if namespace == "" {
		namespace = "skuld"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	subsystem := "billing"

	return &BillingMetrics{
		RunsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "runs_started_total",
			Help:      "Total billing runs started",
		}),
		RunsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "runs_completed_total",
			Help:      "Total billing runs that completed",
		}),
		RunsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "runs_failed_total",
			Help:      "Total billing runs aborted by a selection error",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "run_duration_seconds",
			Help:      "Billing run duration in seconds",
			Buckets:   []float64{.1, .5, 1, 5, 15, 60, 300, 900},
		}),
		CustomersProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "customers_processed_total",
			Help:      "Total customers processed across runs",
		}),
		CustomersSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "customers_skipped_total",
			Help:      "Total customers skipped for a cycle, by reason",
		}, []string{"reason"}),
		OrdersPlaced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "orders_placed_total",
			Help:      "Total consolidated orders placed successfully",
		}),
		OrdersFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "orders_failed_total",
			Help:      "Total order placements that failed",
		}),
		OrderItemCount: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "order_item_count",
			Help:      "Line items per consolidated order",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
		}),
		InstallmentsSuccess: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "installments_success_total",
			Help:      "Total successful installments recorded",
		}),
		InstallmentsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "installments_failed_total",
			Help:      "Total failed installments recorded",
		}),
		SubscriptionsAdvanced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "subscriptions_advanced_total",
			Help:      "Total subscriptions whose actionable date advanced",
		}),
		SubscriptionsDeactivated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "subscriptions_deactivated_total",
			Help:      "Total subscriptions deactivated after all line items expired",
		}),
		SubscriptionsCanceled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "subscriptions_canceled_total",
			Help:      "Total pending cancellations finalized",
		}),
		RemindersDispatched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reminders_dispatched_total",
			Help:      "Total reminder requests dispatched (one per customer)",
		}),
		ReminderDispatchFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reminder_dispatch_failed_total",
			Help:      "Total reminder dispatches that failed (best effort, not retried)",
		}),
		SubscriptionsReminded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "subscriptions_reminded_total",
			Help:      "Total subscriptions marked reminded",
		}),
	}
}
