package reminder

import (
	"context"

	"github.com/dukerupert/skuld/internal/domain"
)

// Dispatcher hands reminder requests to the external notice pipeline.
// Delivery is at-least-once: the reminded flag on the subscription prevents
// duplicate marking within a cycle, but a retried dispatcher may deliver
// the same notice twice. Dispatch failures are best-effort; the processor
// logs and moves on.
type Dispatcher interface {
	// Dispatch emits one batched reminder request covering all of a
	// customer's soon-due subscriptions together.
	Dispatch(ctx context.Context, req *domain.ReminderRequest) error
}
