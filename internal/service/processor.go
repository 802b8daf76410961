package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/skuld/internal/domain"
	"github.com/dukerupert/skuld/internal/orders"
	"github.com/dukerupert/skuld/internal/reminder"
	"github.com/dukerupert/skuld/internal/telemetry"
)

// ProcessorConfig holds processor tuning knobs.
type ProcessorConfig struct {
	// MaxConcurrency bounds how many customers are processed in parallel.
	// Subscriptions of one customer are always processed together on one
	// goroutine, since they consolidate into shared orders.
	MaxConcurrency int

	// PlacementTimeout bounds each external order placement call.
	PlacementTimeout time.Duration

	// AdvanceRetried selects the carried-failure advancement policy, see
	// StateMachine.
	AdvanceRetried bool
}

// Processor drives one billing run: eligibility selection, consolidation,
// order placement, installment logging, and state transitions, per
// customer.
type Processor struct {
	config       ProcessorConfig
	ledger       Ledger
	selector     *Selector
	consolidator *Consolidator
	machine      *StateMachine
	placer       orders.Placer
	dispatcher   reminder.Dispatcher
	metrics      *telemetry.BillingMetrics
	logger       *slog.Logger
}

// NewProcessor creates a processor.
func NewProcessor(
	ledger Ledger,
	selector *Selector,
	placer orders.Placer,
	dispatcher reminder.Dispatcher,
	metrics *telemetry.BillingMetrics,
	config ProcessorConfig,
	logger *slog.Logger,
) *Processor {
	if config.MaxConcurrency == 0 {
		config.MaxConcurrency = 5
	}
	if config.PlacementTimeout == 0 {
		config.PlacementTimeout = 30 * time.Second
	}

	return &Processor{
		config:       config,
		ledger:       ledger,
		selector:     selector,
		consolidator: NewConsolidator(),
		machine:      NewStateMachine(config.AdvanceRetried),
		placer:       placer,
		dispatcher:   dispatcher,
		metrics:      metrics,
		logger:       logger,
	}
}

// Run processes every customer with pending work as of now. A selection
// error aborts the run; per-customer failures are logged and isolated. Run
// is idempotent against the current ledger snapshot: each transition is
// computed from persisted state, so re-running after an interruption picks
// up exactly the work that did not commit.
func (p *Processor) Run(ctx context.Context, now time.Time) error {
	work, err := p.selector.Select(ctx, now)
	if err != nil {
		if p.metrics != nil {
			p.metrics.RunsFailed.Inc()
		}
		return err
	}
	return p.process(ctx, now, work)
}

// Build is Run restricted to an explicit set of customers, for targeted
// re-processing.
func (p *Processor) Build(ctx context.Context, customerIDs []uuid.UUID, now time.Time) error {
	work, err := p.selector.SelectCustomers(ctx, customerIDs, now)
	if err != nil {
		if p.metrics != nil {
			p.metrics.RunsFailed.Inc()
		}
		return err
	}
	return p.process(ctx, now, work)
}

func (p *Processor) process(ctx context.Context, now time.Time, work []*CustomerWork) error {
	start := time.Now()
	if p.metrics != nil {
		p.metrics.RunsStarted.Inc()
	}

	p.logger.Info("billing run starting",
		"as_of", now,
		"customers", len(work),
		"max_concurrency", p.config.MaxConcurrency,
	)

	var wg sync.WaitGroup
	sem := make(chan struct{}, p.config.MaxConcurrency)

	for _, w := range work {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(w *CustomerWork) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := p.processCustomer(ctx, now, w); err != nil {
				// One customer's failure never aborts the others.
				p.logger.Error("customer processing failed",
					"customer_id", w.CustomerID,
					"code", domain.ErrorCode(err),
					"error", err,
				)
				if p.metrics != nil {
					p.metrics.CustomersSkipped.WithLabelValues(domain.ErrorCode(err)).Inc()
				}
				return
			}
			if p.metrics != nil {
				p.metrics.CustomersProcessed.Inc()
			}
		}(w)
	}

	wg.Wait()

	if p.metrics != nil {
		p.metrics.RunsCompleted.Inc()
		p.metrics.RunDuration.Observe(time.Since(start).Seconds())
	}
	p.logger.Info("billing run completed", "as_of", now, "duration", time.Since(start))
	return nil
}

// processCustomer performs one customer's work in two phases: phase one
// builds order requests from the eligibility snapshot without touching the
// ledger; phase two applies transitions only after every placement's
// outcome is known, then commits everything in a single transaction.
//
// Ordering within the customer is expiration, cancellation finalization,
// billing, reminders: billing must not include subscriptions retired
// earlier in the same run.
func (p *Processor) processCustomer(ctx context.Context, now time.Time, work *CustomerWork) error {
	result := &CustomerResult{CustomerID: work.CustomerID}
	touched := make(map[uuid.UUID]bool)

	for _, sub := range work.Expired {
		result.addUpdate(p.machine.Deactivated(sub, now))
		touched[sub.ID] = true
		if p.metrics != nil {
			p.metrics.SubscriptionsDeactivated.Inc()
		}
	}

	for _, sub := range work.PendingCancellation {
		result.addUpdate(p.machine.CancellationFinalized(sub, now))
		touched[sub.ID] = true
		if p.metrics != nil {
			p.metrics.SubscriptionsCanceled.Inc()
		}
	}

	billable, err := p.dueSubscriptions(ctx, work)
	if err != nil {
		return err
	}

	requests, err := p.consolidator.Consolidate(work.CustomerID, billable, now)
	if err != nil {
		// Malformed line items skip the whole customer for this cycle; no
		// partial state is committed.
		return err
	}

	// Every order is placed before any billing transition is resolved: a
	// subscription split across addresses advances only when all of its
	// orders succeeded. Each order records one installment per
	// contributing subscription, carrying the order's address, so the next
	// run retries failed addresses without re-charging settled ones.
	billed := make(map[uuid.UUID]bool)
	failed := make(map[uuid.UUID]bool)

	for _, req := range requests {
		placement, placeErr := p.placeOrder(ctx, req, now)

		for _, subID := range req.SubscriptionIDs {
			touched[subID] = true
			billed[subID] = true

			if placeErr != nil {
				failed[subID] = true
				result.Installments = append(result.Installments, &domain.Installment{
					ID:                uuid.New(),
					SubscriptionID:    subID,
					ShippingAddressID: req.ShippingAddressID,
					Outcome:           domain.InstallmentFailed,
					FailureDetail:     placeErr.Error(),
					CreatedAt:         now,
				})
				if p.metrics != nil {
					p.metrics.InstallmentsFailed.Inc()
				}
				continue
			}

			result.Installments = append(result.Installments, &domain.Installment{
				ID:                uuid.New(),
				SubscriptionID:    subID,
				ShippingAddressID: req.ShippingAddressID,
				Outcome:           domain.InstallmentSuccess,
				OrderReference:    placement.OrderReference,
				CreatedAt:         now,
			})
			if p.metrics != nil {
				p.metrics.InstallmentsSuccess.Inc()
			}
		}
	}

	for _, sub := range billable {
		if !billed[sub.ID] {
			continue
		}
		if failed[sub.ID] {
			result.addUpdate(p.machine.BillingFailed(sub, now))
			continue
		}
		result.addUpdate(p.machine.Billed(sub, now))
		if p.metrics != nil {
			p.metrics.SubscriptionsAdvanced.Inc()
		}
	}

	var remindIDs []uuid.UUID
	for _, sub := range work.Remindable {
		if touched[sub.ID] {
			continue
		}
		result.addUpdate(p.machine.Reminded(sub, now))
		remindIDs = append(remindIDs, sub.ID)
	}

	if !result.Empty() {
		if err := p.ledger.CommitCustomerResult(ctx, result); err != nil {
			return domain.WrapError(err, domain.EUNAVAILABLE, "processor.commit", "failed to commit customer result")
		}
	}

	// The reminded flag is set optimistically in the commit above; a lost
	// dispatch skips at most this cycle's notice.
	if len(remindIDs) > 0 {
		p.dispatchReminder(ctx, work.CustomerID, remindIDs)
	}

	return nil
}

// dueSubscriptions assembles the customer's billable subscriptions with
// line items narrowed by billing progress: an actionable subscription
// skips addresses already billed in its open cycle, and a carried failure
// retries only the addresses whose latest attempt failed. A partially
// billed subscription therefore never re-charges its settled addresses.
func (p *Processor) dueSubscriptions(ctx context.Context, work *CustomerWork) ([]*domain.Subscription, error) {
	ids := make([]uuid.UUID, 0, len(work.Actionable)+len(work.CarriedFailures))
	for _, sub := range work.Actionable {
		ids = append(ids, sub.ID)
	}
	for _, sub := range work.CarriedFailures {
		ids = append(ids, sub.ID)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	progress, err := p.ledger.BillingProgressFor(ctx, ids)
	if err != nil {
		return nil, domain.WrapError(err, domain.EUNAVAILABLE, "processor.progress", "failed to load billing progress")
	}

	billable := make([]*domain.Subscription, 0, len(ids))
	for _, sub := range work.Actionable {
		pr := progress[sub.ID]
		billable = append(billable, narrowItems(sub, func(addr uuid.UUID) bool {
			return pr == nil || !pr.Settled[addr]
		}))
	}
	for _, sub := range work.CarriedFailures {
		pr := progress[sub.ID]
		billable = append(billable, narrowItems(sub, func(addr uuid.UUID) bool {
			return pr != nil && pr.Outstanding[addr]
		}))
	}
	return billable, nil
}

// narrowItems copies sub with its line items restricted to shipping
// addresses accepted by keep.
func narrowItems(sub *domain.Subscription, keep func(addr uuid.UUID) bool) *domain.Subscription {
	kept := make([]domain.LineItem, 0, len(sub.LineItems))
	for _, li := range sub.LineItems {
		if keep(li.Address(sub)) {
			kept = append(kept, li)
		}
	}
	c := *sub
	c.LineItems = kept
	return &c
}

// placeOrder submits one order request under a bounded timeout. Failures
// are returned for recording, never propagated as run errors.
func (p *Processor) placeOrder(ctx context.Context, req *domain.OrderRequest, now time.Time) (*orders.Placement, error) {
	placeCtx, cancel := context.WithTimeout(ctx, p.config.PlacementTimeout)
	defer cancel()

	placement, err := p.placer.PlaceOrder(placeCtx, req, idempotencyKey(req, now))
	if err != nil {
		p.logger.Warn("order placement failed",
			"customer_id", req.CustomerID,
			"address_id", req.ShippingAddressID,
			"items", len(req.Items),
			"error", err,
		)
		if p.metrics != nil {
			p.metrics.OrdersFailed.Inc()
		}
		return nil, err
	}

	p.logger.Info("order placed",
		"customer_id", req.CustomerID,
		"address_id", req.ShippingAddressID,
		"order_reference", placement.OrderReference,
		"items", len(req.Items),
		"subscriptions", len(req.SubscriptionIDs),
	)
	if p.metrics != nil {
		p.metrics.OrdersPlaced.Inc()
		p.metrics.OrderItemCount.Observe(float64(len(req.Items)))
	}
	return placement, nil
}

func (p *Processor) dispatchReminder(ctx context.Context, customerID uuid.UUID, subscriptionIDs []uuid.UUID) {
	req := &domain.ReminderRequest{
		CustomerID:      customerID,
		SubscriptionIDs: subscriptionIDs,
	}

	if err := p.dispatcher.Dispatch(ctx, req); err != nil {
		// Best effort: the subscriptions stay marked reminded, so the
		// notice is skipped for this cycle rather than retried.
		p.logger.Warn("reminder dispatch failed",
			"customer_id", customerID,
			"subscriptions", len(subscriptionIDs),
			"error", err,
		)
		if p.metrics != nil {
			p.metrics.ReminderDispatchFailed.Inc()
		}
		return
	}

	if p.metrics != nil {
		p.metrics.RemindersDispatched.Inc()
		p.metrics.SubscriptionsReminded.Add(float64(len(subscriptionIDs)))
	}
	p.logger.Info("reminder dispatched",
		"customer_id", customerID,
		"subscriptions", len(subscriptionIDs),
	)
}

// idempotencyKey derives a stable key for one consolidated order within one
// billing cycle, so a crashed run that resubmits the same due-item set
// lands on the same external order.
func idempotencyKey(req *domain.OrderRequest, now time.Time) string {
	items := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, fmt.Sprintf("%s:%d", item.SubscribableID, item.Quantity))
	}
	sort.Strings(items)

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s", req.CustomerID, req.ShippingAddressID, now.Format("2006-01-02"))
	for _, item := range items {
		fmt.Fprintf(h, "|%s", item)
	}
	return "skuld-" + hex.EncodeToString(h.Sum(nil))[:32]
}
