package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/skuld/internal/domain"
)

// Ledger is the subscription store as the processor sees it: eligibility
// reads plus one atomic commit per customer.
// Implemented by postgres.Store; tests use an in-memory fake.
type Ledger interface {
	// ActionableSubscriptions returns active subscriptions whose
	// actionable date has been reached as of now, with line items loaded.
	ActionableSubscriptions(ctx context.Context, now time.Time) ([]*domain.Subscription, error)

	// PendingCancellationSubscriptions returns subscriptions awaiting
	// cancellation whose actionable date has been reached as of now.
	PendingCancellationSubscriptions(ctx context.Context, now time.Time) ([]*domain.Subscription, error)

	// ExpiredSubscriptions returns active subscriptions whose every line
	// item has a reached end date, regardless of actionable date.
	ExpiredSubscriptions(ctx context.Context, now time.Time) ([]*domain.Subscription, error)

	// RemindableSubscriptions returns active, not-yet-reminded
	// subscriptions due within lead of now but not due yet.
	RemindableSubscriptions(ctx context.Context, now time.Time, lead time.Duration) ([]*domain.Subscription, error)

	// SubscriptionsWithOutstandingFailures returns active subscriptions
	// with at least one shipping address whose latest installment is a
	// failure, with line items loaded. Their failed addresses are retried
	// alongside the customer's other due work.
	SubscriptionsWithOutstandingFailures(ctx context.Context) ([]*domain.Subscription, error)

	// BillingProgressFor reports billing progress by shipping address for
	// the given subscriptions. Subscriptions with no recorded attempts are
	// absent from the map.
	BillingProgressFor(ctx context.Context, subscriptionIDs []uuid.UUID) (map[uuid.UUID]*BillingProgress, error)

	// CommitCustomerResult persists one customer's run outcome: every
	// subscription transition and appended installment, all-or-nothing.
	CommitCustomerResult(ctx context.Context, result *CustomerResult) error
}

// BillingProgress summarizes one subscription's billing attempts by
// shipping address. A run with mixed order outcomes leaves some addresses
// settled and some outstanding.
type BillingProgress struct {
	// Settled addresses were billed successfully at or after the
	// subscription's current actionable date, i.e. within the open cycle.
	Settled map[uuid.UUID]bool

	// Outstanding addresses' latest billing attempt failed.
	Outstanding map[uuid.UUID]bool
}

// CustomerResult is the unit of work committed per customer. All updates in
// one result are applied in a single transaction so that "advance date /
// mark reminded / record installment" is all-or-nothing relative to the
// order outcome.
type CustomerResult struct {
	CustomerID   uuid.UUID
	Updated      []*domain.Subscription
	Installments []*domain.Installment
}

// addUpdate records a subscription transition, replacing any earlier update
// for the same subscription. No subscription is mutated twice in one run;
// this keeps the last computed snapshot if a caller slips.
func (r *CustomerResult) addUpdate(sub *domain.Subscription) {
	for i, existing := range r.Updated {
		if existing.ID == sub.ID {
			r.Updated[i] = sub
			return
		}
	}
	r.Updated = append(r.Updated, sub)
}

// Empty reports whether the result carries no work.
func (r *CustomerResult) Empty() bool {
	return len(r.Updated) == 0 && len(r.Installments) == 0
}
