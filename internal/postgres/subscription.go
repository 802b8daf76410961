package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dukerupert/skuld/internal/domain"
	"github.com/dukerupert/skuld/internal/service"
)

const subscriptionColumns = `
	id, customer_id, state, actionable_date, reminded,
	successive_skip_count, billing_interval, shipping_address_id,
	created_at, updated_at`

// ActionableSubscriptions returns active subscriptions due as of now, with
// line items loaded.
func (s *Store) ActionableSubscriptions(ctx context.Context, now time.Time) ([]*domain.Subscription, error) {
	q := fmt.Sprintf(`
		SELECT %s FROM subscriptions
		WHERE state = $1 AND actionable_date <= $2
		ORDER BY customer_id, actionable_date, id`, subscriptionColumns)

	return s.querySubscriptions(ctx, q, domain.SubscriptionActive, now)
}

// PendingCancellationSubscriptions returns cancellations due to finalize as
// of now. Cancellation rides the billing cadence, not the request moment.
func (s *Store) PendingCancellationSubscriptions(ctx context.Context, now time.Time) ([]*domain.Subscription, error) {
	q := fmt.Sprintf(`
		SELECT %s FROM subscriptions
		WHERE state = $1 AND actionable_date <= $2
		ORDER BY customer_id, actionable_date, id`, subscriptionColumns)

	return s.querySubscriptions(ctx, q, domain.SubscriptionPendingCancellation, now)
}

// ExpiredSubscriptions returns active subscriptions whose every line item
// has a reached end date, regardless of actionable date. A subscription
// with any open-ended item is not expired.
func (s *Store) ExpiredSubscriptions(ctx context.Context, now time.Time) ([]*domain.Subscription, error) {
	q := fmt.Sprintf(`
		SELECT %s FROM subscriptions sub
		WHERE sub.state = $1
		  AND EXISTS (
			SELECT 1 FROM subscription_line_items li
			WHERE li.subscription_id = sub.id
		  )
		  AND NOT EXISTS (
			SELECT 1 FROM subscription_line_items li
			WHERE li.subscription_id = sub.id
			  AND (li.end_date IS NULL OR li.end_date > $2)
		  )
		ORDER BY sub.customer_id, sub.id`, subscriptionColumns)

	return s.querySubscriptions(ctx, q, domain.SubscriptionActive, now)
}

// RemindableSubscriptions returns active, unreminded subscriptions due
// within lead of now but not due yet.
func (s *Store) RemindableSubscriptions(ctx context.Context, now time.Time, lead time.Duration) ([]*domain.Subscription, error) {
	q := fmt.Sprintf(`
		SELECT %s FROM subscriptions
		WHERE state = $1
		  AND reminded = false
		  AND actionable_date > $2
		  AND actionable_date <= $3
		ORDER BY customer_id, actionable_date, id`, subscriptionColumns)

	return s.querySubscriptions(ctx, q, domain.SubscriptionActive, now, now.Add(lead))
}

// SubscriptionsWithOutstandingFailures returns active subscriptions with
// at least one shipping address whose most recent installment failed. The
// installment log is append-only, so "outstanding" means no later success
// for that address supersedes the failure.
func (s *Store) SubscriptionsWithOutstandingFailures(ctx context.Context) ([]*domain.Subscription, error) {
	q := fmt.Sprintf(`
		SELECT %s FROM subscriptions sub
		WHERE sub.state = $1
		  AND $2 IN (
			SELECT DISTINCT ON (i.shipping_address_id) i.outcome
			FROM installments i
			WHERE i.subscription_id = sub.id
			ORDER BY i.shipping_address_id, i.created_at DESC, i.id DESC
		  )
		ORDER BY sub.customer_id, sub.id`, subscriptionColumns)

	return s.querySubscriptions(ctx, q, domain.SubscriptionActive, domain.InstallmentFailed)
}

// CommitCustomerResult applies one customer's transitions and appends its
// installments inside a single transaction, so the run outcome for the
// customer is all-or-nothing.
func (s *Store) CommitCustomerResult(ctx context.Context, result *service.CustomerResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	const updateQ = `
		UPDATE subscriptions
		SET state = $2,
		    actionable_date = $3,
		    reminded = $4,
		    successive_skip_count = $5,
		    updated_at = $6
		WHERE id = $1`

	for _, sub := range result.Updated {
		tag, err := tx.Exec(ctx, updateQ,
			sub.ID, sub.State, sub.ActionableDate, sub.Reminded,
			sub.SuccessiveSkipCount, sub.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update subscription %s: %w", sub.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("subscription %s vanished during processing", sub.ID)
		}
	}

	const installmentQ = `
		INSERT INTO installments (id, subscription_id, shipping_address_id, outcome, order_reference, failure_detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	for _, inst := range result.Installments {
		if _, err := tx.Exec(ctx, installmentQ,
			inst.ID, inst.SubscriptionID, inst.ShippingAddressID, inst.Outcome,
			inst.OrderReference, inst.FailureDetail, inst.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert installment for subscription %s: %w", inst.SubscriptionID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit customer result: %w", err)
	}
	return nil
}

// querySubscriptions runs a subscription select and loads line items for
// the result set.
func (s *Store) querySubscriptions(ctx context.Context, q string, args ...any) ([]*domain.Subscription, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("subscription query failed: %w", err)
	}
	defer rows.Close()

	var subs []*domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("subscription rows failed: %w", err)
	}

	if err := s.loadLineItems(ctx, subs); err != nil {
		return nil, err
	}
	return subs, nil
}

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := row.Scan(
		&sub.ID, &sub.CustomerID, &sub.State, &sub.ActionableDate,
		&sub.Reminded, &sub.SuccessiveSkipCount, &sub.Interval,
		&sub.ShippingAddressID, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan subscription: %w", err)
	}
	return &sub, nil
}

// loadLineItems attaches line items to each subscription in subs.
func (s *Store) loadLineItems(ctx context.Context, subs []*domain.Subscription) error {
	if len(subs) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(subs))
	byID := make(map[uuid.UUID]*domain.Subscription, len(subs))
	for i, sub := range subs {
		ids[i] = sub.ID
		byID[sub.ID] = sub
	}

	const q = `
		SELECT id, subscription_id, subscribable_id, quantity,
		       provider_price_id, end_date, shipping_address_id
		FROM subscription_line_items
		WHERE subscription_id = ANY($1)
		ORDER BY subscription_id, created_at, id`

	rows, err := s.pool.Query(ctx, q, ids)
	if err != nil {
		return fmt.Errorf("line item query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			li   domain.LineItem
			addr uuid.NullUUID
		)
		if err := rows.Scan(&li.ID, &li.SubscriptionID, &li.SubscribableID,
			&li.Quantity, &li.ProviderPriceID, &li.EndDate, &addr); err != nil {
			return fmt.Errorf("failed to scan line item: %w", err)
		}
		if addr.Valid {
			li.ShippingAddressID = addr.UUID
		}
		if sub, ok := byID[li.SubscriptionID]; ok {
			sub.LineItems = append(sub.LineItems, li)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("line item rows failed: %w", err)
	}
	return nil
}
