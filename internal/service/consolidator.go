package service

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dukerupert/skuld/internal/domain"
)

// Consolidator merges a customer's due line items into the fewest possible
// orders: one per distinct shipping address, with items deduplicated by
// subscribable so an item arriving both via a fresh due subscription and a
// carried failure is billed once.
type Consolidator struct {
	validate *validator.Validate
}

// NewConsolidator creates an order consolidator.
func NewConsolidator() *Consolidator {
	return &Consolidator{
		validate: validator.New(),
	}
}

// Consolidate builds one order request per (customer, address) pair from
// the given subscriptions' line items. Subscriptions are visited in order,
// so item and address ordering is deterministic. Line items past their end
// date are no longer deliverable and never consolidated; a customer with
// zero due items yields zero requests, not an error.
//
// Returns a domain.EINVALID error when a line item is malformed (no
// address, non-positive quantity); the caller skips the customer for this
// cycle.
func (c *Consolidator) Consolidate(customerID uuid.UUID, subs []*domain.Subscription, now time.Time) ([]*domain.OrderRequest, error) {
	var (
		orders  []*domain.OrderRequest
		byAddr  = make(map[uuid.UUID]*domain.OrderRequest)
		seen    = make(map[uuid.UUID]map[uuid.UUID]bool) // address -> subscribable
		contrib = make(map[uuid.UUID]map[uuid.UUID]bool) // address -> subscription
	)

	for _, sub := range subs {
		for _, li := range sub.LineItems {
			if li.EndDate != nil && !li.EndDate.After(now) {
				continue
			}

			addr := li.Address(sub)
			if addr == uuid.Nil {
				return nil, domain.Errorf(domain.EINVALID, "consolidator.consolidate",
					"line item %s on subscription %s has no shipping address", li.ID, sub.ID)
			}
			if li.Quantity <= 0 {
				return nil, domain.Errorf(domain.EINVALID, "consolidator.consolidate",
					"line item %s on subscription %s has quantity %d", li.ID, sub.ID, li.Quantity)
			}

			order, ok := byAddr[addr]
			if !ok {
				order = &domain.OrderRequest{
					CustomerID:        customerID,
					ShippingAddressID: addr,
				}
				byAddr[addr] = order
				orders = append(orders, order)
				seen[addr] = make(map[uuid.UUID]bool)
				contrib[addr] = make(map[uuid.UUID]bool)
			}

			if !contrib[addr][sub.ID] {
				contrib[addr][sub.ID] = true
				order.SubscriptionIDs = append(order.SubscriptionIDs, sub.ID)
			}

			// A single unit of a deduplicated item is billed once, not
			// twice, even when it appears via both a due subscription and
			// a carried failure.
			if seen[addr][li.SubscribableID] {
				continue
			}
			seen[addr][li.SubscribableID] = true

			order.Items = append(order.Items, domain.OrderItem{
				SubscribableID:  li.SubscribableID,
				Quantity:        li.Quantity,
				ProviderPriceID: li.ProviderPriceID,
			})
		}
	}

	for _, order := range orders {
		if err := c.validate.Struct(order); err != nil {
			return nil, domain.WrapError(err, domain.EINVALID, "consolidator.consolidate",
				fmt.Sprintf("order request for address %s failed validation", order.ShippingAddressID))
		}
	}

	return orders, nil
}
