package domain

import (
	"github.com/google/uuid"
)

// OrderItem is one (subscribable, quantity) pair on an order request.
type OrderItem struct {
	SubscribableID  uuid.UUID `validate:"required"`
	Quantity        int32     `validate:"gt=0"`
	ProviderPriceID string
}

// OrderRequest asks the external placement collaborator to bill and fulfill
// one consolidated order: all of one customer's due items bound for a
// single shipping address, drawn from any number of subscriptions.
type OrderRequest struct {
	CustomerID        uuid.UUID   `validate:"required"`
	ShippingAddressID uuid.UUID   `validate:"required"`
	Items             []OrderItem `validate:"min=1,dive"`

	// SubscriptionIDs are the subscriptions contributing items to this
	// order, in item order. Their transitions are applied together once the
	// placement outcome is known.
	SubscriptionIDs []uuid.UUID
}

// ReminderRequest asks the external dispatcher to send one heads-up notice
// covering all of a customer's soon-due subscriptions together.
type ReminderRequest struct {
	CustomerID      uuid.UUID   `json:"customer_id"`
	SubscriptionIDs []uuid.UUID `json:"subscription_ids"`
}
