package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionState represents the lifecycle state of a subscription.
type SubscriptionState string

// Subscription lifecycle states.
//
// Subscriptions are created externally as "active". The processor is the
// only writer afterwards, except for cancellation requests which set
// "pending_cancellation" directly. "inactive" and "canceled" are terminal:
// nothing selects them again.
const (
	SubscriptionActive              SubscriptionState = "active"
	SubscriptionInactive            SubscriptionState = "inactive"
	SubscriptionPendingCancellation SubscriptionState = "pending_cancellation"
	SubscriptionCanceled            SubscriptionState = "canceled"
)

// Subscription is a recurring delivery commitment for a single customer.
type Subscription struct {
	ID         uuid.UUID
	CustomerID uuid.UUID
	State      SubscriptionState

	// ActionableDate is when the subscription is next due for billing.
	// Meaningful only while the subscription is active or pending
	// cancellation; it advances forward only.
	ActionableDate time.Time

	// Reminded is true once a heads-up notice has been sent for the
	// current ActionableDate. Reset to false when the subscription is
	// billed so the next cycle can be reminded again.
	Reminded bool

	// SuccessiveSkipCount counts consecutive cycles that passed without a
	// successful billing. Reset to zero on success.
	SuccessiveSkipCount int32

	// Interval determines how far ActionableDate advances per cycle.
	Interval BillingInterval

	// ShippingAddressID is the default fulfillment destination. Line items
	// may override it; consolidation groups by the effective address.
	ShippingAddressID uuid.UUID

	LineItems []LineItem

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LineItem is one deliverable entry on a subscription.
type LineItem struct {
	ID             uuid.UUID
	SubscriptionID uuid.UUID

	// SubscribableID references the product variant being delivered.
	SubscribableID uuid.UUID

	Quantity int32

	// ProviderPriceID is the billing provider's price for the subscribable,
	// used when placing the order externally.
	ProviderPriceID string

	// EndDate, when set, is the last moment the item is deliverable. A
	// subscription whose every item has a reached EndDate is expired.
	EndDate *time.Time

	// ShippingAddressID overrides the subscription address when set.
	ShippingAddressID uuid.UUID
}

// Address returns the fulfillment destination for the item on the given
// subscription.
func (li LineItem) Address(sub *Subscription) uuid.UUID {
	if li.ShippingAddressID != uuid.Nil {
		return li.ShippingAddressID
	}
	return sub.ShippingAddressID
}

// Actionable reports whether the subscription is due for billing as of now.
func (s *Subscription) Actionable(now time.Time) bool {
	return s.State == SubscriptionActive && !s.ActionableDate.After(now)
}

// CancelationDue reports whether a pending cancellation should be finalized
// as of now. Cancellation is finalized on the billing cadence, not
// immediately on request.
func (s *Subscription) CancelationDue(now time.Time) bool {
	return s.State == SubscriptionPendingCancellation && !s.ActionableDate.After(now)
}

// Expired reports whether every line item has reached its end date as of
// now. A subscription with no line items, or with any open-ended item, is
// not expired.
func (s *Subscription) Expired(now time.Time) bool {
	if s.State != SubscriptionActive || len(s.LineItems) == 0 {
		return false
	}
	for _, li := range s.LineItems {
		if li.EndDate == nil || li.EndDate.After(now) {
			return false
		}
	}
	return true
}

// Remindable reports whether the subscription is due soon (within lead of
// now, but not due yet) and has not been reminded for this cycle.
func (s *Subscription) Remindable(now time.Time, lead time.Duration) bool {
	if s.State != SubscriptionActive || s.Reminded {
		return false
	}
	return s.ActionableDate.After(now) && !s.ActionableDate.After(now.Add(lead))
}

// NextActionableDate computes the cycle following from, per the
// subscription's billing interval.
func (s *Subscription) NextActionableDate(from time.Time) time.Time {
	return s.Interval.Next(from)
}

// BillingInterval is the cadence a subscription bills on.
type BillingInterval string

// Supported billing intervals.
const (
	IntervalWeekly       BillingInterval = "weekly"
	IntervalBiweekly     BillingInterval = "biweekly"
	IntervalMonthly      BillingInterval = "monthly"
	IntervalEvery6Weeks  BillingInterval = "every_6_weeks"
	IntervalEvery2Months BillingInterval = "every_2_months"
)

// ValidBillingIntervals lists all valid billing interval values.
var ValidBillingIntervals = []BillingInterval{
	IntervalWeekly,
	IntervalBiweekly,
	IntervalMonthly,
	IntervalEvery6Weeks,
	IntervalEvery2Months,
}

// Valid reports whether the interval is one of the supported cadences.
func (i BillingInterval) Valid() bool {
	for _, v := range ValidBillingIntervals {
		if v == i {
			return true
		}
	}
	return false
}

// Next returns the due date one interval after from. Unknown intervals fall
// back to monthly so a corrupt row cannot stall forever at the same date.
func (i BillingInterval) Next(from time.Time) time.Time {
	switch i {
	case IntervalWeekly:
		return from.AddDate(0, 0, 7)
	case IntervalBiweekly:
		return from.AddDate(0, 0, 14)
	case IntervalMonthly:
		return from.AddDate(0, 1, 0)
	case IntervalEvery6Weeks:
		return from.AddDate(0, 0, 42)
	case IntervalEvery2Months:
		return from.AddDate(0, 2, 0)
	default:
		return from.AddDate(0, 1, 0)
	}
}
