package orders

import (
	"context"
	"fmt"
	"sync"

	"github.com/dukerupert/skuld/internal/domain"
)

// MockPlacer implements Placer for testing. It records every request and
// answers from configured results, optionally failing per customer.
type MockPlacer struct {
	mu sync.Mutex

	// PlaceErr, when set, fails every placement.
	PlaceErr error

	// FailCustomers fails placements for specific customers only.
	FailCustomers map[string]error

	// FailAddresses fails placements for specific shipping addresses only.
	FailAddresses map[string]error

	// Requests holds every placement attempt in submission order.
	Requests []*domain.OrderRequest

	// Keys holds the idempotency key of each attempt, aligned with
	// Requests.
	Keys []string

	nextRef int
}

// NewMockPlacer creates an empty mock placer.
func NewMockPlacer() *MockPlacer {
	return &MockPlacer{
		FailCustomers: make(map[string]error),
		FailAddresses: make(map[string]error),
	}
}

// PlaceOrder records the request and returns a synthetic order reference,
// or the configured error.
func (m *MockPlacer) PlaceOrder(ctx context.Context, req *domain.OrderRequest, idempotencyKey string) (*Placement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)
	m.Keys = append(m.Keys, idempotencyKey)

	if m.PlaceErr != nil {
		return nil, m.PlaceErr
	}
	if err, ok := m.FailCustomers[req.CustomerID.String()]; ok {
		return nil, err
	}
	if err, ok := m.FailAddresses[req.ShippingAddressID.String()]; ok {
		return nil, err
	}

	m.nextRef++
	return &Placement{OrderReference: fmt.Sprintf("order_mock_%03d", m.nextRef)}, nil
}

// PlacedCount returns how many placements were attempted.
func (m *MockPlacer) PlacedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}
