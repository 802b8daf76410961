package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/invoice"
	"github.com/stripe/stripe-go/v82/invoiceitem"

	"github.com/dukerupert/skuld/internal/domain"
)

// CustomerDirectory resolves our customer ids to billing provider customer
// ids. Customer and payment-method storage live outside this system.
type CustomerDirectory interface {
	ProviderCustomerID(ctx context.Context, customerID uuid.UUID) (string, error)
}

// StripeConfig contains configuration for the Stripe placer.
type StripeConfig struct {
	// APIKey is the Stripe secret key (sk_test_... or sk_live_...)
	APIKey string

	// MaxRetries is the maximum number of retries for transient failures.
	// Default: 3
	MaxRetries int
}

// Validate checks that required configuration is present.
func (c *StripeConfig) Validate() error {
	if c.APIKey == "" {
		return errors.New("stripe: API key is required")
	}
	return nil
}

// IsTestMode returns true if using test mode API keys.
func (c *StripeConfig) IsTestMode() bool {
	return len(c.APIKey) > 7 && c.APIKey[:8] == "sk_test_"
}

// StripePlacer implements Placer by drafting a Stripe invoice from the
// order's line item prices, finalizing it, and charging the customer's
// default payment method.
type StripePlacer struct {
	config    StripeConfig
	directory CustomerDirectory
	logger    *slog.Logger
}

// NewStripePlacer creates a Stripe-backed order placer.
func NewStripePlacer(config StripeConfig, directory CustomerDirectory, logger *slog.Logger) (*StripePlacer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}

	stripe.Key = config.APIKey
	stripe.SetBackend(stripe.APIBackend, stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(int64(config.MaxRetries)),
	}))

	return &StripePlacer{
		config:    config,
		directory: directory,
		logger:    logger,
	}, nil
}

// PlaceOrder drafts, finalizes, and pays one invoice covering the
// consolidated order. The idempotency key scopes every Stripe call, so a
// resubmission after a crash lands on the same invoice instead of a second
// charge.
func (p *StripePlacer) PlaceOrder(ctx context.Context, req *domain.OrderRequest, idempotencyKey string) (*Placement, error) {
	providerCustomerID, err := p.directory.ProviderCustomerID(ctx, req.CustomerID)
	if err != nil {
		return nil, domain.WrapError(err, domain.ENOTFOUND, "stripe.place_order", "no billing customer on file")
	}

	invParams := &stripe.InvoiceParams{
		Customer:         stripe.String(providerCustomerID),
		CollectionMethod: stripe.String("charge_automatically"),
		AutoAdvance:      stripe.Bool(false),
		Metadata: map[string]string{
			"customer_id":         req.CustomerID.String(),
			"shipping_address_id": req.ShippingAddressID.String(),
		},
	}
	invParams.Context = ctx
	invParams.SetIdempotencyKey(idempotencyKey)

	inv, err := invoice.New(invParams)
	if err != nil {
		return nil, wrapStripeError("create invoice", err)
	}

	for i, item := range req.Items {
		itemParams := invoiceItemParams(providerCustomerID, inv.ID, item)
		itemParams.Context = ctx
		itemParams.SetIdempotencyKey(fmt.Sprintf("%s-item-%d", idempotencyKey, i))

		if _, err := invoiceitem.New(itemParams); err != nil {
			return nil, wrapStripeError("add invoice item", err)
		}
	}

	finalizeParams := &stripe.InvoiceFinalizeInvoiceParams{}
	finalizeParams.Context = ctx
	finalizeParams.SetIdempotencyKey(idempotencyKey + "-finalize")

	if _, err := invoice.FinalizeInvoice(inv.ID, finalizeParams); err != nil {
		return nil, wrapStripeError("finalize invoice", err)
	}

	payParams := &stripe.InvoicePayParams{}
	payParams.Context = ctx
	payParams.SetIdempotencyKey(idempotencyKey + "-pay")

	paid, err := invoice.Pay(inv.ID, payParams)
	if err != nil {
		return nil, wrapStripeError("pay invoice", err)
	}

	p.logger.Info("stripe: order placed",
		"invoice_id", paid.ID,
		"customer_id", req.CustomerID,
		"items", len(req.Items),
	)

	return &Placement{OrderReference: paid.ID}, nil
}

// invoiceItemParams builds the params attaching one order item to a draft
// invoice. Prices live in Stripe; the item only references its price id.
func invoiceItemParams(providerCustomerID, invoiceID string, item domain.OrderItem) *stripe.InvoiceItemParams {
	return &stripe.InvoiceItemParams{
		Customer: stripe.String(providerCustomerID),
		Invoice:  stripe.String(invoiceID),
		Pricing: &stripe.InvoiceItemPricingParams{
			Price: stripe.String(item.ProviderPriceID),
		},
		Quantity: stripe.Int64(int64(item.Quantity)),
		Metadata: map[string]string{
			"subscribable_id": item.SubscribableID.String(),
		},
	}
}

// wrapStripeError maps a Stripe API error onto a domain error code. Card
// and invoice errors are expected billing failures; everything else means
// the collaborator is misbehaving.
func wrapStripeError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch stripeErr.Type {
		case stripe.ErrorTypeCard, stripe.ErrorTypeInvalidRequest:
			return domain.WrapError(err, domain.EPAYMENT, "stripe."+op, string(stripeErr.Code))
		}
	}
	return domain.WrapError(err, domain.EUNAVAILABLE, "stripe."+op, "stripe request failed")
}
