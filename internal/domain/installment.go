package domain

import (
	"time"

	"github.com/google/uuid"
)

// InstallmentOutcome is the recorded result of one billing attempt.
type InstallmentOutcome string

const (
	InstallmentSuccess InstallmentOutcome = "success"
	InstallmentFailed  InstallmentOutcome = "failed"
)

// Installment is one billing attempt outcome for a subscription. The log is
// append-only: rows are never mutated after creation, and a subscription's
// current billing state is derived from its latest installment plus the
// subscription row, never by rewriting history.
type Installment struct {
	ID             uuid.UUID
	SubscriptionID uuid.UUID

	// ShippingAddressID is the address of the order this attempt billed.
	// A subscription split across addresses records one installment per
	// order, so retries can target the addresses that actually failed.
	ShippingAddressID uuid.UUID

	Outcome InstallmentOutcome

	// OrderReference is the external order id for successful attempts.
	OrderReference string

	// FailureDetail is an opaque diagnostic payload for failed attempts.
	FailureDetail string

	CreatedAt time.Time
}
