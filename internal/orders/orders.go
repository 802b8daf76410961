package orders

import (
	"context"

	"github.com/dukerupert/skuld/internal/domain"
)

// Placer is the external order placement collaborator: it checks out one
// consolidated order atomically, charging the customer and creating the
// fulfillment order. Amounts, tax, and promotions are its business, not
// ours.
//
// Implementations must be safe to retry: the processor derives a stable
// idempotency key per (customer, address, item set, cycle), so a duplicate
// submission after a crash must not double-charge.
type Placer interface {
	// PlaceOrder submits one order request. On success it returns an
	// opaque order reference for the installment log. Failures are
	// expected and recoverable; they surface as failed installments, not
	// run aborts.
	PlaceOrder(ctx context.Context, req *domain.OrderRequest, idempotencyKey string) (*Placement, error)
}

// Placement is the successful result of placing an order.
type Placement struct {
	// OrderReference is the collaborator's id for the created order.
	OrderReference string
}
