package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/skuld/internal/domain"
)

func TestSelector_GroupsWorkByCustomer(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	alice := uuid.New()
	bob := uuid.New()

	aliceDue := newSubscription(withCustomer(alice))
	alicePending := newSubscription(withCustomer(alice), withState(domain.SubscriptionPendingCancellation))
	bobSoon := newSubscription(withCustomer(bob), withActionableDate(now.Add(24*time.Hour)))

	ledger := newFakeLedger(aliceDue, alicePending, bobSoon)
	selector := NewSelector(ledger, 48*time.Hour)

	work, err := selector.Select(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, work, 2)

	byCustomer := make(map[uuid.UUID]*CustomerWork)
	for _, w := range work {
		byCustomer[w.CustomerID] = w
	}

	aliceWork := byCustomer[alice]
	require.NotNil(t, aliceWork)
	require.Len(t, aliceWork.Actionable, 1)
	assert.Equal(t, aliceDue.ID, aliceWork.Actionable[0].ID)
	require.Len(t, aliceWork.PendingCancellation, 1)
	assert.Equal(t, alicePending.ID, aliceWork.PendingCancellation[0].ID)
	assert.True(t, aliceWork.HasBillableWork())

	bobWork := byCustomer[bob]
	require.NotNil(t, bobWork)
	require.Len(t, bobWork.Remindable, 1)
	assert.Equal(t, bobSoon.ID, bobWork.Remindable[0].ID)
	assert.False(t, bobWork.HasBillableWork())
}

func TestSelector_ExpiredWinsOverDueAndRemindable(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	customer := uuid.New()
	ended := now.AddDate(0, 0, -1)

	// Due and expired at once.
	expiredDue := newSubscription(withCustomer(customer), withLineItem(uuid.New(), 1, &ended))

	ledger := newFakeLedger(expiredDue)
	selector := NewSelector(ledger, 48*time.Hour)

	work, err := selector.Select(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, work, 1)

	assert.Len(t, work[0].Expired, 1)
	assert.Empty(t, work[0].Actionable)
	assert.Empty(t, work[0].Remindable)
}

func TestSelector_CarriedFailureExcludesDue(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	customer := uuid.New()

	// Due with a failed latest installment: appears only as actionable.
	dueFailed := newSubscription(withCustomer(customer))

	// Not due, failed latest installment: carried.
	carried := newSubscription(withCustomer(customer),
		withActionableDate(time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)))

	// Not due, latest installment succeeded after an earlier failure: clean.
	recovered := newSubscription(withCustomer(customer),
		withActionableDate(time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)))

	ledger := newFakeLedger(dueFailed, carried, recovered)
	ledger.installments = append(ledger.installments,
		failedInstallment(dueFailed.ID, dueFailed.ShippingAddressID, now.AddDate(0, 0, -7)),
		failedInstallment(carried.ID, carried.ShippingAddressID, now.AddDate(0, 0, -7)),
		failedInstallment(recovered.ID, recovered.ShippingAddressID, now.AddDate(0, 0, -14)),
		&domain.Installment{
			ID:                uuid.New(),
			SubscriptionID:    recovered.ID,
			ShippingAddressID: recovered.ShippingAddressID,
			Outcome:           domain.InstallmentSuccess,
			OrderReference:    "order_001",
			CreatedAt:         now.AddDate(0, 0, -7),
		},
	)

	selector := NewSelector(ledger, 48*time.Hour)
	work, err := selector.Select(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, work, 1)

	require.Len(t, work[0].Actionable, 1)
	assert.Equal(t, dueFailed.ID, work[0].Actionable[0].ID)

	require.Len(t, work[0].CarriedFailures, 1)
	assert.Equal(t, carried.ID, work[0].CarriedFailures[0].ID)
}

func TestSelector_IgnoresQuietSubscriptions(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	farFuture := newSubscription(withActionableDate(now.AddDate(0, 1, 0)))
	inactive := newSubscription(withState(domain.SubscriptionInactive))
	canceled := newSubscription(withState(domain.SubscriptionCanceled))
	alreadyReminded := newSubscription(withActionableDate(now.Add(24*time.Hour)), withReminded())

	ledger := newFakeLedger(farFuture, inactive, canceled, alreadyReminded)
	selector := NewSelector(ledger, 48*time.Hour)

	work, err := selector.Select(context.Background(), now)
	require.NoError(t, err)
	assert.Empty(t, work)
}

func TestSelector_SelectCustomersFilters(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	wanted := uuid.New()
	other := uuid.New()

	ledger := newFakeLedger(
		newSubscription(withCustomer(wanted)),
		newSubscription(withCustomer(other)),
	)
	selector := NewSelector(ledger, 48*time.Hour)

	work, err := selector.SelectCustomers(context.Background(), []uuid.UUID{wanted}, now)
	require.NoError(t, err)
	require.Len(t, work, 1)
	assert.Equal(t, wanted, work[0].CustomerID)
}

func TestSelector_LedgerErrorWrapped(t *testing.T) {
	ledger := newFakeLedger()
	ledger.selectErr = assert.AnError

	selector := NewSelector(ledger, 48*time.Hour)

	_, err := selector.Select(context.Background(), time.Now())
	require.Error(t, err)
	assert.Equal(t, domain.EUNAVAILABLE, domain.ErrorCode(err))
	assert.Equal(t, "selector.select", domain.ErrorOp(err))
}
