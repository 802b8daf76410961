package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildReminder_Singular(t *testing.T) {
	msg, err := BuildReminder("customer@example.com", ReminderData{Count: 1, FromName: "Skuld Coffee"})
	require.NoError(t, err)

	assert.Equal(t, []string{"customer@example.com"}, msg.To)
	assert.Equal(t, "Your subscription bills soon", msg.Subject)
	assert.Contains(t, msg.TextBody, "one of your subscriptions is due to bill soon")
	assert.Contains(t, msg.TextBody, "Skuld Coffee")
}

func TestBuildReminder_Plural(t *testing.T) {
	msg, err := BuildReminder("customer@example.com", ReminderData{Count: 3, FromName: "Skuld Coffee"})
	require.NoError(t, err)

	assert.Equal(t, "3 of your subscriptions bill soon", msg.Subject)
	assert.Contains(t, msg.TextBody, "3 of your subscriptions are due to bill soon")
}
