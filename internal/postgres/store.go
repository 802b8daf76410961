// Package postgres implements the subscription ledger and installment log
// on PostgreSQL.
package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dukerupert/skuld/internal/service"
)

// Store implements service.Ledger and orders.CustomerDirectory over a pgx
// connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Compile-time check that Store satisfies the ledger contract.
var _ service.Ledger = (*Store)(nil)

// NewStore creates a store on an existing pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// ProviderCustomerID resolves a customer to its billing provider id. The
// mapping is maintained by the external account system; we only read it.
func (s *Store) ProviderCustomerID(ctx context.Context, customerID uuid.UUID) (string, error) {
	const q = `
		SELECT provider_customer_id
		FROM billing_customers
		WHERE customer_id = $1`

	var providerID string
	if err := s.pool.QueryRow(ctx, q, customerID).Scan(&providerID); err != nil {
		return "", fmt.Errorf("failed to resolve billing customer %s: %w", customerID, err)
	}
	return providerID, nil
}

// CustomerEmail resolves a customer's notification address from the same
// external replica.
func (s *Store) CustomerEmail(ctx context.Context, customerID uuid.UUID) (string, error) {
	const q = `
		SELECT email
		FROM billing_customers
		WHERE customer_id = $1`

	var addr string
	if err := s.pool.QueryRow(ctx, q, customerID).Scan(&addr); err != nil {
		return "", fmt.Errorf("failed to resolve email for customer %s: %w", customerID, err)
	}
	return addr, nil
}
