package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/skuld/internal/domain"
)

// CustomerWork is everything one customer has pending as of a moment: the
// four disjoint eligibility sets plus subscriptions carrying failed
// installments to retry.
type CustomerWork struct {
	CustomerID          uuid.UUID
	Actionable          []*domain.Subscription
	PendingCancellation []*domain.Subscription
	Expired             []*domain.Subscription
	Remindable          []*domain.Subscription

	// CarriedFailures are active subscriptions whose latest installment
	// failed. Their items ride along in this run's orders regardless of
	// their own actionable date.
	CarriedFailures []*domain.Subscription
}

// HasBillableWork reports whether the customer needs anything beyond a
// reminder this run.
func (w *CustomerWork) HasBillableWork() bool {
	return len(w.Actionable) > 0 ||
		len(w.PendingCancellation) > 0 ||
		len(w.Expired) > 0 ||
		len(w.CarriedFailures) > 0
}

// Selector computes eligibility snapshots from the ledger. It is strictly
// read-only: selection never mutates state, which is what makes a run safe
// to repeat after a crash.
type Selector struct {
	ledger       Ledger
	reminderLead time.Duration
}

// NewSelector creates an eligibility selector.
func NewSelector(ledger Ledger, reminderLead time.Duration) *Selector {
	return &Selector{
		ledger:       ledger,
		reminderLead: reminderLead,
	}
}

// Select returns per-customer work for every customer with anything
// actionable, pending cancellation, expired, remindable, or carrying a
// failed installment as of now. The returned sets are disjoint: a
// subscription that is both expired and due appears only as expired, since
// deactivation precedes billing within the run.
func (s *Selector) Select(ctx context.Context, now time.Time) ([]*CustomerWork, error) {
	expired, err := s.ledger.ExpiredSubscriptions(ctx, now)
	if err != nil {
		return nil, domain.WrapError(err, domain.EUNAVAILABLE, "selector.select", "failed to query expired subscriptions")
	}
	expiredIDs := idSet(expired)

	actionable, err := s.ledger.ActionableSubscriptions(ctx, now)
	if err != nil {
		return nil, domain.WrapError(err, domain.EUNAVAILABLE, "selector.select", "failed to query actionable subscriptions")
	}

	pending, err := s.ledger.PendingCancellationSubscriptions(ctx, now)
	if err != nil {
		return nil, domain.WrapError(err, domain.EUNAVAILABLE, "selector.select", "failed to query pending cancellations")
	}

	remindable, err := s.ledger.RemindableSubscriptions(ctx, now, s.reminderLead)
	if err != nil {
		return nil, domain.WrapError(err, domain.EUNAVAILABLE, "selector.select", "failed to query remindable subscriptions")
	}

	carried, err := s.ledger.SubscriptionsWithOutstandingFailures(ctx)
	if err != nil {
		return nil, domain.WrapError(err, domain.EUNAVAILABLE, "selector.select", "failed to query outstanding failures")
	}

	byCustomer := make(map[uuid.UUID]*CustomerWork)
	work := func(customerID uuid.UUID) *CustomerWork {
		w, ok := byCustomer[customerID]
		if !ok {
			w = &CustomerWork{CustomerID: customerID}
			byCustomer[customerID] = w
		}
		return w
	}

	for _, sub := range expired {
		work(sub.CustomerID).Expired = append(work(sub.CustomerID).Expired, sub)
	}
	for _, sub := range actionable {
		if expiredIDs[sub.ID] {
			continue
		}
		work(sub.CustomerID).Actionable = append(work(sub.CustomerID).Actionable, sub)
	}
	for _, sub := range pending {
		work(sub.CustomerID).PendingCancellation = append(work(sub.CustomerID).PendingCancellation, sub)
	}
	for _, sub := range remindable {
		if expiredIDs[sub.ID] {
			continue
		}
		work(sub.CustomerID).Remindable = append(work(sub.CustomerID).Remindable, sub)
	}
	for _, sub := range carried {
		// An actionable subscription with an outstanding failure is
		// already in the due set; consolidation dedups its items anyway,
		// but keeping the sets disjoint makes transitions unambiguous.
		if expiredIDs[sub.ID] || sub.Actionable(now) {
			continue
		}
		work(sub.CustomerID).CarriedFailures = append(work(sub.CustomerID).CarriedFailures, sub)
	}

	out := make([]*CustomerWork, 0, len(byCustomer))
	for _, w := range byCustomer {
		out = append(out, w)
	}
	// Stable order keeps runs reproducible; no cross-customer ordering is
	// guaranteed beyond that.
	sort.Slice(out, func(i, j int) bool {
		return out[i].CustomerID.String() < out[j].CustomerID.String()
	})
	return out, nil
}

// SelectCustomers is Select restricted to an explicit set of customers,
// used for targeted re-processing.
func (s *Selector) SelectCustomers(ctx context.Context, customerIDs []uuid.UUID, now time.Time) ([]*CustomerWork, error) {
	all, err := s.Select(ctx, now)
	if err != nil {
		return nil, err
	}

	wanted := make(map[uuid.UUID]bool, len(customerIDs))
	for _, id := range customerIDs {
		wanted[id] = true
	}

	out := make([]*CustomerWork, 0, len(customerIDs))
	for _, w := range all {
		if wanted[w.CustomerID] {
			out = append(out, w)
		}
	}
	return out, nil
}

func idSet(subs []*domain.Subscription) map[uuid.UUID]bool {
	set := make(map[uuid.UUID]bool, len(subs))
	for _, sub := range subs {
		set[sub.ID] = true
	}
	return set
}
