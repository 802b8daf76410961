package email

import (
	"bytes"
	"fmt"
	"text/template"
)

// reminderTemplate is the plain-text body of the upcoming-billing notice.
// One notice covers all of a customer's soon-due subscriptions together.
var reminderTemplate = template.Must(template.New("reminder").Parse(
	`Hi,

This is a heads-up that {{if eq .Count 1}}one of your subscriptions is{{else}}{{.Count}} of your subscriptions are{{end}} due to bill soon.

No action is needed. Your saved payment method will be charged automatically and your delivery will ship as usual. If you'd like to make changes, update your subscription before the billing date.

Thanks,
{{.FromName}}
`))

// ReminderData feeds the reminder template.
type ReminderData struct {
	Count    int
	FromName string
}

// BuildReminder renders the reminder notice for a customer.
func BuildReminder(to string, data ReminderData) (*Email, error) {
	var body bytes.Buffer
	if err := reminderTemplate.Execute(&body, data); err != nil {
		return nil, fmt.Errorf("failed to render reminder template: %w", err)
	}

	subject := "Your subscription bills soon"
	if data.Count > 1 {
		subject = fmt.Sprintf("%d of your subscriptions bill soon", data.Count)
	}

	return &Email{
		To:       []string{to},
		Subject:  subject,
		TextBody: body.String(),
	}, nil
}
