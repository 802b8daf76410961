// Package sender consumes reminder requests and mails the notices.
package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/dukerupert/skuld/internal/domain"
	"github.com/dukerupert/skuld/internal/email"
)

// AddressBook resolves customers to notification email addresses. Customer
// storage is an external system; we only read the replica.
type AddressBook interface {
	CustomerEmail(ctx context.Context, customerID uuid.UUID) (string, error)
}

// Service consumes reminder requests from NATS and sends one notice per
// request. Delivery is at-least-once: a redelivered request sends a
// duplicate notice, which the processor documents rather than prevents.
type Service struct {
	conn      *nats.Conn
	subject   string
	queue     string
	addresses AddressBook
	sender    email.Sender
	fromName  string
	logger    *slog.Logger
}

// New creates a sender service.
func New(conn *nats.Conn, subject string, addresses AddressBook, emailSender email.Sender, fromName string, logger *slog.Logger) *Service {
	if subject == "" {
		subject = "skuld.reminders"
	}
	return &Service{
		conn:      conn,
		subject:   subject,
		queue:     "skuld-senders",
		addresses: addresses,
		sender:    emailSender,
		fromName:  fromName,
		logger:    logger,
	}
}

// Run subscribes and blocks until the context is cancelled. Members of the
// same queue group share the work, so running several senders is safe.
func (s *Service) Run(ctx context.Context) error {
	sub, err := s.conn.QueueSubscribe(s.subject, s.queue, func(msg *nats.Msg) {
		if err := s.handle(ctx, msg.Data); err != nil {
			s.logger.Error("failed to handle reminder request", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.subject, err)
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Error("failed to unsubscribe", "error", err)
		}
	}()

	s.logger.Info("sender running", "subject", s.subject, "queue", s.queue)
	<-ctx.Done()
	s.logger.Info("sender shutting down")
	return ctx.Err()
}

func (s *Service) handle(ctx context.Context, payload []byte) error {
	var req domain.ReminderRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("failed to unmarshal reminder request: %w", err)
	}
	if len(req.SubscriptionIDs) == 0 {
		return nil
	}

	to, err := s.addresses.CustomerEmail(ctx, req.CustomerID)
	if err != nil {
		return fmt.Errorf("failed to resolve email for customer %s: %w", req.CustomerID, err)
	}

	notice, err := email.BuildReminder(to, email.ReminderData{
		Count:    len(req.SubscriptionIDs),
		FromName: s.fromName,
	})
	if err != nil {
		return err
	}

	if _, err := s.sender.Send(ctx, notice); err != nil {
		return fmt.Errorf("failed to send reminder to customer %s: %w", req.CustomerID, err)
	}

	s.logger.Info("reminder sent",
		"customer_id", req.CustomerID,
		"subscriptions", len(req.SubscriptionIDs),
	)
	return nil
}
