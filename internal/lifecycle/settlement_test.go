package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/TheSoftNode/StacksPay-sub004/internal/errors"
	"github.com/TheSoftNode/StacksPay-sub004/internal/models"
)

func TestSettleHappyPath(t *testing.T) {
	f := newFixture(t, 0)
	payment := f.seedConfirmed(t, time.Now().UTC().Add(-time.Minute))

	require.NoError(t, f.machine.Settle(context.Background(), payment.PaymentID))

	stored := f.getPayment(t, payment.PaymentID)
	assert.Equal(t, models.StatusSettled, stored.Status)
	assert.Equal(t, int64(13_700), stored.FeeAmount)
	assert.Equal(t, int64(1_356_300), stored.NetAmount)
	assert.Equal(t, stored.ReceivedAmount, stored.FeeAmount+stored.NetAmount)
	require.NotNil(t, stored.SettledAt)
	assert.NotEmpty(t, stored.SettlementTxID)
	assert.NotEmpty(t, stored.ContractSettleTxID)

	transfers := f.chain.Transfers()
	require.Len(t, transfers, 1)
	assert.Equal(t, payment.UniqueAddress, transfers[0].From)
	assert.Equal(t, merchantAddress, transfers[0].To)
	assert.Equal(t, int64(1_356_300), transfers[0].Amount)
	assert.Equal(t, payment.PaymentID, transfers[0].Memo)

	assert.Equal(t, []models.WebhookEventType{models.EventPaymentSettled}, f.events.EventTypes())
}

func TestSettleBeforeDueYieldsNotDue(t *testing.T) {
	f := newFixture(t, time.Hour)
	due := time.Now().UTC().Add(time.Hour)
	payment := f.seedConfirmed(t, due)

	err := f.machine.Settle(context.Background(), payment.PaymentID)
	require.Error(t, err)

	var notDue *NotDueError
	require.True(t, errors.As(err, &notDue))
	assert.Equal(t, payment.PaymentID, notDue.PaymentID)
	assert.WithinDuration(t, due, notDue.Due, time.Second)

	stored := f.getPayment(t, payment.PaymentID)
	assert.Equal(t, models.StatusConfirmed, stored.Status)
	assert.Empty(t, f.chain.Transfers())
	assert.Empty(t, f.events.EventTypes())
}

func TestSettleRedeliveryIsNoOp(t *testing.T) {
	f := newFixture(t, 0)
	payment := f.seedConfirmed(t, time.Now().UTC().Add(-time.Minute))

	require.NoError(t, f.machine.Settle(context.Background(), payment.PaymentID))
	require.NoError(t, f.machine.Settle(context.Background(), payment.PaymentID))

	assert.Len(t, f.chain.Transfers(), 1)
	assert.Equal(t, []models.WebhookEventType{models.EventPaymentSettled}, f.events.EventTypes())
}

func TestSettlePendingPaymentIsNoOp(t *testing.T) {
	f := newFixture(t, 0)
	payment := f.seedPending(t)

	require.NoError(t, f.machine.Settle(context.Background(), payment.PaymentID))

	stored := f.getPayment(t, payment.PaymentID)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Empty(t, f.chain.Transfers())
}

func TestSettleUnknownPayment(t *testing.T) {
	f := newFixture(t, 0)

	err := f.machine.Settle(context.Background(), "pay_missing")
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "PAYMENT_NOT_FOUND", appErr.Code)
}

func TestSettleTransferFailureMarksFailed(t *testing.T) {
	f := newFixture(t, 0)
	payment := f.seedConfirmed(t, time.Now().UTC().Add(-time.Minute))
	f.chain.FailNext("transfer", fmt.Errorf("node rejected transaction"))

	err := f.machine.Settle(context.Background(), payment.PaymentID)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "SETTLEMENT_FAILED", appErr.Code)

	stored := f.getPayment(t, payment.PaymentID)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "settlement transfer failed")
	assert.Empty(t, stored.SettlementTxID)
	assert.Nil(t, stored.SettledAt)
	assert.Equal(t, []models.WebhookEventType{models.EventPaymentFailed}, f.events.EventTypes())

	// The failure is terminal: redelivery does not retry the transfer
	require.NoError(t, f.machine.Settle(context.Background(), payment.PaymentID))
	assert.Empty(t, f.chain.Transfers())
}

func TestSettleMissingMerchantMarksFailed(t *testing.T) {
	f := newFixture(t, 0)
	payment := f.seedConfirmed(t, time.Now().UTC().Add(-time.Minute), func(p *models.Payment) {
		p.MerchantID = "merch_ghost"
	})

	err := f.machine.Settle(context.Background(), payment.PaymentID)
	require.Error(t, err)

	stored := f.getPayment(t, payment.PaymentID)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.Equal(t, "merchant record missing at settlement time", stored.ErrorMessage)
	assert.Empty(t, f.chain.Transfers())
	assert.Equal(t, []models.WebhookEventType{models.EventPaymentFailed}, f.events.EventTypes())
}

func TestSettleInvalidSettlementAddressMarksFailed(t *testing.T) {
	f := newFixture(t, 0)
	require.NoError(t, f.payments.PutMerchant(context.Background(), &models.Merchant{
		MerchantID:     "merch_noaddr",
		Name:           "No Address Shop",
		FeeRatePercent: 1,
	}))

	payment := f.seedConfirmed(t, time.Now().UTC().Add(-time.Minute), func(p *models.Payment) {
		p.MerchantID = "merch_noaddr"
	})

	err := f.machine.Settle(context.Background(), payment.PaymentID)
	require.Error(t, err)

	stored := f.getPayment(t, payment.PaymentID)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.Equal(t, "merchant settlement address is missing or invalid", stored.ErrorMessage)
	assert.Empty(t, f.chain.Transfers())
}

func TestSettleFundConservation(t *testing.T) {
	cases := []struct {
		name     string
		received int64
		rate     int64
	}{
		{"one percent round", 1_370_000, 1},
		{"one percent with remainder", 1_000_001, 1},
		{"five percent small", 1_001, 5},
		{"zero rate", 2_500_000, 0},
		{"three percent odd", 999_999_937, 3},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, 0)
			payment := f.seedConfirmed(t, time.Now().UTC().Add(-time.Minute), func(p *models.Payment) {
				p.ReceivedAmount = tc.received
				p.FeeRatePercent = tc.rate
			})

			require.NoError(t, f.machine.Settle(context.Background(), payment.PaymentID))

			stored := f.getPayment(t, payment.PaymentID)
			assert.Equal(t, tc.received, stored.FeeAmount+stored.NetAmount)

			transfers := f.chain.Transfers()
			require.Len(t, transfers, 1)
			assert.Equal(t, stored.NetAmount, transfers[0].Amount)
		})
	}
}

func TestSweepDueSettlements(t *testing.T) {
	f := newFixture(t, 0)
	now := time.Now().UTC()

	due1 := f.seedConfirmed(t, now.Add(-2*time.Minute))
	due2 := f.seedConfirmed(t, now.Add(-time.Minute))
	future := f.seedConfirmed(t, now.Add(time.Hour))
	pending := f.seedPending(t)

	settled, err := f.machine.SweepDueSettlements(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, settled)

	assert.Equal(t, models.StatusSettled, f.getPayment(t, due1.PaymentID).Status)
	assert.Equal(t, models.StatusSettled, f.getPayment(t, due2.PaymentID).Status)
	assert.Equal(t, models.StatusConfirmed, f.getPayment(t, future.PaymentID).Status)
	assert.Equal(t, models.StatusPending, f.getPayment(t, pending.PaymentID).Status)

	// Nothing left to do
	settled, err = f.machine.SweepDueSettlements(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, settled)
}

func TestSweepContinuesPastFailures(t *testing.T) {
	f := newFixture(t, 0)
	now := time.Now().UTC()

	failing := f.seedConfirmed(t, now.Add(-2*time.Minute))
	healthy := f.seedConfirmed(t, now.Add(-time.Minute))

	// Oldest due settles first, so the injected failure hits it
	f.chain.FailNext("transfer", fmt.Errorf("node rejected transaction"))

	settled, err := f.machine.SweepDueSettlements(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, settled)

	assert.Equal(t, models.StatusFailed, f.getPayment(t, failing.PaymentID).Status)
	assert.Equal(t, models.StatusSettled, f.getPayment(t, healthy.PaymentID).Status)
}

func TestExecutorRejectsNonPositiveAmount(t *testing.T) {
	f := newFixture(t, 0)
	payment := f.seedConfirmed(t, time.Now().UTC())

	executor := NewExecutor(f.vault, f.chain)

	_, err := executor.Execute(context.Background(), payment, merchantAddress, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refusing settlement transfer")

	_, err = executor.Execute(context.Background(), payment, merchantAddress, -100)
	require.Error(t, err)
	assert.Empty(t, f.chain.Transfers())
}

func TestExecutorRejectsCorruptKey(t *testing.T) {
	f := newFixture(t, 0)
	payment := f.seedConfirmed(t, time.Now().UTC())
	payment.EncryptedKey = "not-even-base64!"

	executor := NewExecutor(f.vault, f.chain)

	_, err := executor.Execute(context.Background(), payment, merchantAddress, 1_000)
	require.Error(t, err)
	assert.Empty(t, f.chain.Transfers())
}
