package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/dukerupert/skuld/internal/domain"
)

// DefaultSubject is the subject reminder requests are published on.
const DefaultSubject = "skuld.reminders"

// NATSDispatcher publishes reminder requests to a NATS subject. The sender
// service consumes them and mails the notices.
type NATSDispatcher struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewNATSDispatcher connects to NATS and returns a dispatcher publishing
// on subject (DefaultSubject when empty).
func NewNATSDispatcher(url, subject string, logger *slog.Logger) (*NATSDispatcher, error) {
	if subject == "" {
		subject = DefaultSubject
	}

	conn, err := nats.Connect(url,
		nats.Name("skuld-processor"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSDispatcher{
		conn:    conn,
		subject: subject,
		logger:  logger,
	}, nil
}

// Dispatch publishes the request as JSON. No synchronous response is
// expected from the consumer.
func (d *NATSDispatcher) Dispatch(ctx context.Context, req *domain.ReminderRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal reminder request: %w", err)
	}

	if err := d.conn.Publish(d.subject, payload); err != nil {
		return fmt.Errorf("failed to publish reminder request: %w", err)
	}

	d.logger.Debug("reminder request published",
		"customer_id", req.CustomerID,
		"subscriptions", len(req.SubscriptionIDs),
	)
	return nil
}

// Close flushes and closes the underlying connection.
func (d *NATSDispatcher) Close() {
	if err := d.conn.Flush(); err != nil {
		d.logger.Error("failed to flush NATS connection", "error", err)
	}
	d.conn.Close()
}
