package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/skuld/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =============================================================================
// IN-MEMORY LEDGER FAKE
// =============================================================================

// fakeLedger implements Ledger in memory. Selection is computed from the
// same predicates the real store encodes in SQL, so processor tests
// exercise full select-process-commit-reselect cycles.
type fakeLedger struct {
	mu sync.Mutex

	subs         map[uuid.UUID]*domain.Subscription
	installments []*domain.Installment

	selectErr error
	commitErr error

	commits int
}

func newFakeLedger(subs ...*domain.Subscription) *fakeLedger {
	l := &fakeLedger{subs: make(map[uuid.UUID]*domain.Subscription)}
	for _, sub := range subs {
		l.subs[sub.ID] = sub
	}
	return l
}

func (l *fakeLedger) add(subs ...*domain.Subscription) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, sub := range subs {
		l.subs[sub.ID] = sub
	}
}

func (l *fakeLedger) get(id uuid.UUID) *domain.Subscription {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.subs[id]
}

func (l *fakeLedger) installmentsFor(id uuid.UUID) []*domain.Installment {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*domain.Installment
	for _, inst := range l.installments {
		if inst.SubscriptionID == id {
			out = append(out, inst)
		}
	}
	return out
}

func (l *fakeLedger) selectWhere(pred func(*domain.Subscription) bool) []*domain.Subscription {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*domain.Subscription
	for _, sub := range l.subs {
		if pred(sub) {
			copied := *sub
			copied.LineItems = append([]domain.LineItem(nil), sub.LineItems...)
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

func (l *fakeLedger) ActionableSubscriptions(ctx context.Context, now time.Time) ([]*domain.Subscription, error) {
	if l.selectErr != nil {
		return nil, l.selectErr
	}
	return l.selectWhere(func(s *domain.Subscription) bool { return s.Actionable(now) }), nil
}

func (l *fakeLedger) PendingCancellationSubscriptions(ctx context.Context, now time.Time) ([]*domain.Subscription, error) {
	if l.selectErr != nil {
		return nil, l.selectErr
	}
	return l.selectWhere(func(s *domain.Subscription) bool { return s.CancelationDue(now) }), nil
}

func (l *fakeLedger) ExpiredSubscriptions(ctx context.Context, now time.Time) ([]*domain.Subscription, error) {
	if l.selectErr != nil {
		return nil, l.selectErr
	}
	return l.selectWhere(func(s *domain.Subscription) bool { return s.Expired(now) }), nil
}

func (l *fakeLedger) RemindableSubscriptions(ctx context.Context, now time.Time, lead time.Duration) ([]*domain.Subscription, error) {
	if l.selectErr != nil {
		return nil, l.selectErr
	}
	return l.selectWhere(func(s *domain.Subscription) bool { return s.Remindable(now, lead) }), nil
}

type addressKey struct {
	subID  uuid.UUID
	addrID uuid.UUID
}

// latestByAddress returns the newest installment per (subscription,
// address). Callers hold l.mu.
func (l *fakeLedger) latestByAddress() map[addressKey]*domain.Installment {
	latest := make(map[addressKey]*domain.Installment)
	for _, inst := range l.installments {
		// appended in order, so the last write wins
		latest[addressKey{inst.SubscriptionID, inst.ShippingAddressID}] = inst
	}
	return latest
}

func (l *fakeLedger) SubscriptionsWithOutstandingFailures(ctx context.Context) ([]*domain.Subscription, error) {
	if l.selectErr != nil {
		return nil, l.selectErr
	}

	l.mu.Lock()
	outstanding := make(map[uuid.UUID]bool)
	for _, inst := range l.latestByAddress() {
		if inst.Outcome == domain.InstallmentFailed {
			outstanding[inst.SubscriptionID] = true
		}
	}
	l.mu.Unlock()

	return l.selectWhere(func(s *domain.Subscription) bool {
		return s.State == domain.SubscriptionActive && outstanding[s.ID]
	}), nil
}

func (l *fakeLedger) BillingProgressFor(ctx context.Context, subscriptionIDs []uuid.UUID) (map[uuid.UUID]*BillingProgress, error) {
	if l.selectErr != nil {
		return nil, l.selectErr
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	wanted := make(map[uuid.UUID]bool, len(subscriptionIDs))
	for _, id := range subscriptionIDs {
		wanted[id] = true
	}

	progress := make(map[uuid.UUID]*BillingProgress)
	for key, inst := range l.latestByAddress() {
		sub := l.subs[key.subID]
		if sub == nil || !wanted[key.subID] {
			continue
		}

		pr := progress[key.subID]
		if pr == nil {
			pr = &BillingProgress{
				Settled:     make(map[uuid.UUID]bool),
				Outstanding: make(map[uuid.UUID]bool),
			}
			progress[key.subID] = pr
		}

		switch {
		case inst.Outcome == domain.InstallmentFailed:
			pr.Outstanding[key.addrID] = true
		case !inst.CreatedAt.Before(sub.ActionableDate):
			pr.Settled[key.addrID] = true
		}
	}
	return progress, nil
}

func (l *fakeLedger) CommitCustomerResult(ctx context.Context, result *CustomerResult) error {
	if l.commitErr != nil {
		return l.commitErr
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.commits++
	for _, sub := range result.Updated {
		copied := *sub
		// The commit carries scalar transitions only; line items are not
		// part of it, matching the store's UPDATE.
		if existing := l.subs[sub.ID]; existing != nil {
			copied.LineItems = existing.LineItems
		} else {
			copied.LineItems = append([]domain.LineItem(nil), sub.LineItems...)
		}
		l.subs[sub.ID] = &copied
	}
	l.installments = append(l.installments, result.Installments...)
	return nil
}

// =============================================================================
// SUBSCRIPTION BUILDERS
// =============================================================================

type subOption func(*domain.Subscription)

func withCustomer(id uuid.UUID) subOption {
	return func(s *domain.Subscription) { s.CustomerID = id }
}

func withState(state domain.SubscriptionState) subOption {
	return func(s *domain.Subscription) { s.State = state }
}

func withActionableDate(t time.Time) subOption {
	return func(s *domain.Subscription) { s.ActionableDate = t }
}

func withReminded() subOption {
	return func(s *domain.Subscription) { s.Reminded = true }
}

func withAddress(id uuid.UUID) subOption {
	return func(s *domain.Subscription) { s.ShippingAddressID = id }
}

func withLineItem(subscribable uuid.UUID, quantity int32, endDate *time.Time) subOption {
	return func(s *domain.Subscription) {
		s.LineItems = append(s.LineItems, domain.LineItem{
			ID:             uuid.New(),
			SubscriptionID: s.ID,
			SubscribableID: subscribable,
			Quantity:       quantity,
			EndDate:        endDate,
		})
	}
}

func withLineItemAt(subscribable uuid.UUID, quantity int32, addr uuid.UUID) subOption {
	return func(s *domain.Subscription) {
		s.LineItems = append(s.LineItems, domain.LineItem{
			ID:                uuid.New(),
			SubscriptionID:    s.ID,
			SubscribableID:    subscribable,
			Quantity:          quantity,
			ShippingAddressID: addr,
		})
	}
}

func newSubscription(opts ...subOption) *domain.Subscription {
	id := uuid.New()
	sub := &domain.Subscription{
		ID:                id,
		CustomerID:        uuid.New(),
		State:             domain.SubscriptionActive,
		ActionableDate:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Interval:          domain.IntervalMonthly,
		ShippingAddressID: uuid.New(),
	}
	for _, opt := range opts {
		opt(sub)
	}
	if len(sub.LineItems) == 0 {
		sub.LineItems = []domain.LineItem{{
			ID:             uuid.New(),
			SubscriptionID: id,
			SubscribableID: uuid.New(),
			Quantity:       1,
		}}
	}
	return sub
}
