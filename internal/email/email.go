package email

import "context"

// Email represents an email message to be sent.
type Email struct {
	To       []string
	From     string
	Subject  string
	TextBody string
}

// Sender sends reminder notices. Implementations can use SMTP, Postmark,
// SES, etc.
type Sender interface {
	// Send sends an email message and returns the provider's message id
	// when one is available.
	Send(ctx context.Context, email *Email) (string, error)
}
