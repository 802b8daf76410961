package reminder

import (
	"context"
	"sync"

	"github.com/dukerupert/skuld/internal/domain"
)

// MockDispatcher implements Dispatcher for testing, recording every
// request.
type MockDispatcher struct {
	mu sync.Mutex

	// DispatchErr, when set, fails every dispatch.
	DispatchErr error

	Requests []*domain.ReminderRequest
}

// NewMockDispatcher creates an empty mock dispatcher.
func NewMockDispatcher() *MockDispatcher {
	return &MockDispatcher{}
}

// Dispatch records the request or returns the configured error.
func (m *MockDispatcher) Dispatch(ctx context.Context, req *domain.ReminderRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.DispatchErr != nil {
		return m.DispatchErr
	}
	m.Requests = append(m.Requests, req)
	return nil
}

// DispatchedCount returns how many requests were recorded.
func (m *MockDispatcher) DispatchedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}
