package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dukerupert/skuld/internal/domain"
)

func TestStateMachine_BilledAdvancesPastNow(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	machine := NewStateMachine(false)

	t.Run("one cycle for the common case", func(t *testing.T) {
		sub := newSubscription(withActionableDate(time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)),
			withReminded())
		sub.SuccessiveSkipCount = 2

		got := machine.Billed(sub, now)
		assert.Equal(t, time.Date(2026, 4, 14, 0, 0, 0, 0, time.UTC), got.ActionableDate)
		assert.False(t, got.Reminded)
		assert.Equal(t, int32(0), got.SuccessiveSkipCount)

		// The input is untouched.
		assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), sub.ActionableDate)
		assert.True(t, sub.Reminded)
	})

	t.Run("whole intervals for a long-overdue subscription", func(t *testing.T) {
		sub := newSubscription(withActionableDate(time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)))

		got := machine.Billed(sub, now)

		// Five monthly steps land on the first date after now; the day of
		// month anchor is preserved.
		assert.Equal(t, time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC), got.ActionableDate)
	})

	t.Run("weekly cadence", func(t *testing.T) {
		sub := newSubscription(withActionableDate(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)))
		sub.Interval = domain.IntervalWeekly

		got := machine.Billed(sub, now)
		assert.Equal(t, time.Date(2026, 3, 22, 0, 0, 0, 0, time.UTC), got.ActionableDate)
	})
}

func TestStateMachine_BilledCarriedFailurePolicy(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	future := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)

	t.Run("natural schedule by default", func(t *testing.T) {
		sub := newSubscription(withActionableDate(future))
		got := NewStateMachine(false).Billed(sub, now)
		assert.Equal(t, future, got.ActionableDate)
		assert.Equal(t, int32(0), got.SuccessiveSkipCount)
	})

	t.Run("advance from billing moment when enabled", func(t *testing.T) {
		sub := newSubscription(withActionableDate(future))
		got := NewStateMachine(true).Billed(sub, now)
		assert.Equal(t, now.AddDate(0, 1, 0), got.ActionableDate)
	})
}

func TestStateMachine_BillingFailedKeepsDate(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	sub := newSubscription(withActionableDate(date))
	sub.SuccessiveSkipCount = 1

	got := NewStateMachine(false).BillingFailed(sub, now)
	assert.Equal(t, date, got.ActionableDate)
	assert.Equal(t, int32(2), got.SuccessiveSkipCount)
	assert.Equal(t, domain.SubscriptionActive, got.State)
}

func TestStateMachine_Deactivated(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	got := NewStateMachine(false).Deactivated(newSubscription(), now)
	assert.Equal(t, domain.SubscriptionInactive, got.State)
	assert.Equal(t, now, got.UpdatedAt)
}

func TestStateMachine_CancellationFinalized(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	sub := newSubscription(withState(domain.SubscriptionPendingCancellation))
	sub.SuccessiveSkipCount = 4

	got := NewStateMachine(false).CancellationFinalized(sub, now)
	assert.Equal(t, domain.SubscriptionCanceled, got.State)
	assert.Equal(t, int32(0), got.SuccessiveSkipCount)
}

func TestStateMachine_Reminded(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	sub := newSubscription()
	got := NewStateMachine(false).Reminded(sub, now)
	assert.True(t, got.Reminded)
	assert.False(t, sub.Reminded)
}
