package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dukerupert/skuld/internal/domain"
	"github.com/dukerupert/skuld/internal/service"
)

// BillingProgressFor reports, per subscription, which shipping addresses
// are settled for the open cycle and which carry an outstanding failure.
// The latest installment per (subscription, address) decides: a failure is
// outstanding until a later success supersedes it, and a success settles
// its address when recorded at or after the subscription's current
// actionable date.
func (s *Store) BillingProgressFor(ctx context.Context, subscriptionIDs []uuid.UUID) (map[uuid.UUID]*service.BillingProgress, error) {
	const q = `
		SELECT latest.subscription_id, latest.shipping_address_id, latest.outcome,
		       latest.created_at >= sub.actionable_date
		FROM (
			SELECT DISTINCT ON (subscription_id, shipping_address_id)
				subscription_id, shipping_address_id, outcome, created_at
			FROM installments
			WHERE subscription_id = ANY($1)
			ORDER BY subscription_id, shipping_address_id, created_at DESC, id DESC
		) latest
		JOIN subscriptions sub ON sub.id = latest.subscription_id`

	rows, err := s.pool.Query(ctx, q, subscriptionIDs)
	if err != nil {
		return nil, fmt.Errorf("billing progress query failed: %w", err)
	}
	defer rows.Close()

	progress := make(map[uuid.UUID]*service.BillingProgress)
	for rows.Next() {
		var (
			subID   uuid.UUID
			addrID  uuid.UUID
			outcome domain.InstallmentOutcome
			inCycle bool
		)
		if err := rows.Scan(&subID, &addrID, &outcome, &inCycle); err != nil {
			return nil, fmt.Errorf("failed to scan billing progress: %w", err)
		}

		pr := progress[subID]
		if pr == nil {
			pr = &service.BillingProgress{
				Settled:     make(map[uuid.UUID]bool),
				Outstanding: make(map[uuid.UUID]bool),
			}
			progress[subID] = pr
		}

		switch {
		case outcome == domain.InstallmentFailed:
			pr.Outstanding[addrID] = true
		case inCycle:
			pr.Settled[addrID] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("billing progress rows failed: %w", err)
	}
	return progress, nil
}
