package service

import (
	"time"

	"github.com/dukerupert/skuld/internal/domain"
)

// StateMachine applies per-subscription transitions once the outcome of
// billing (or the passage of time) is known. It only consumes outcomes; it
// never calls the payment collaborator itself.
//
// All methods return an updated copy and leave the input untouched, so the
// processor can build every transition before committing any of them.
type StateMachine struct {
	// advanceRetried controls what happens to a not-yet-due subscription
	// whose carried failure is re-billed successfully inside another
	// order: false leaves its actionable date on the natural schedule,
	// true advances it from the billing moment.
	advanceRetried bool
}

// NewStateMachine creates a state machine with the given carried-failure
// advancement policy.
func NewStateMachine(advanceRetried bool) *StateMachine {
	return &StateMachine{advanceRetried: advanceRetried}
}

// Billed transitions a subscription after its items shipped in a
// successful order. The actionable date advances past now in whole
// intervals so a long-overdue subscription is not immediately due again,
// the reminded flag resets for the next cycle, and the skip streak ends.
func (m *StateMachine) Billed(sub *domain.Subscription, now time.Time) *domain.Subscription {
	next := *sub

	if sub.Actionable(now) {
		date := sub.NextActionableDate(sub.ActionableDate)
		for !date.After(now) {
			date = sub.NextActionableDate(date)
		}
		next.ActionableDate = date
	} else if m.advanceRetried {
		// Carried failure billed ahead of schedule: the delivery just
		// happened, so the next one is measured from now.
		next.ActionableDate = sub.NextActionableDate(now)
	}

	next.Reminded = false
	next.SuccessiveSkipCount = 0
	next.UpdatedAt = now
	return &next
}

// BillingFailed transitions a subscription after order placement failed.
// The actionable date stays put so the next run retries via the carried
// failed installment.
func (m *StateMachine) BillingFailed(sub *domain.Subscription, now time.Time) *domain.Subscription {
	next := *sub
	next.SuccessiveSkipCount++
	next.UpdatedAt = now
	return &next
}

// Deactivated retires a subscription whose every line item has reached its
// end date. Terminal for billing purposes.
func (m *StateMachine) Deactivated(sub *domain.Subscription, now time.Time) *domain.Subscription {
	next := *sub
	next.State = domain.SubscriptionInactive
	next.UpdatedAt = now
	return &next
}

// CancellationFinalized completes a pending cancellation on the billing
// cadence. No order is placed for the subscription this cycle.
func (m *StateMachine) CancellationFinalized(sub *domain.Subscription, now time.Time) *domain.Subscription {
	next := *sub
	next.State = domain.SubscriptionCanceled
	next.SuccessiveSkipCount = 0
	next.UpdatedAt = now
	return &next
}

// Reminded marks a subscription as notified for its current upcoming
// actionable date.
func (m *StateMachine) Reminded(sub *domain.Subscription, now time.Time) *domain.Subscription {
	next := *sub
	next.Reminded = true
	next.UpdatedAt = now
	return &next
}
