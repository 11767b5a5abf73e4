package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheSoftNode/StacksPay-sub004/internal/contract"
	apperrors "github.com/TheSoftNode/StacksPay-sub004/internal/errors"
	"github.com/TheSoftNode/StacksPay-sub004/internal/models"
	"github.com/TheSoftNode/StacksPay-sub004/internal/notify"
	"github.com/TheSoftNode/StacksPay-sub004/internal/store"
	"github.com/TheSoftNode/StacksPay-sub004/internal/validator"
	"github.com/TheSoftNode/StacksPay-sub004/internal/wallet"
)

const (
	testMasterKey   = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	merchantAddress = "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"
)

type fixture struct {
	payments *store.MemoryStore
	chain    *contract.Fake
	events   *notify.Capture
	vault    *wallet.Vault
	machine  *Machine
}

func newFixture(t *testing.T, settlementDelay time.Duration) *fixture {
	t.Helper()

	vault, err := wallet.NewVault(testMasterKey, "testnet")
	require.NoError(t, err)

	payments := store.NewMemoryStore()
	chain := contract.NewFake()
	events := notify.NewCapture()

	machine := NewMachine(Deps{
		Payments:        payments,
		Merchants:       payments,
		Contract:        chain,
		Notifier:        events,
		Vault:           vault,
		SettlementDelay: settlementDelay,
		DefaultExpiry:   time.Hour,
	})

	require.NoError(t, payments.PutMerchant(context.Background(), &models.Merchant{
		MerchantID:        "merch_1",
		Name:              "Test Shop",
		SettlementAddress: merchantAddress,
		WebhookURL:        "https://shop.example/webhooks",
		WebhookSecret:     "whsec_test",
		FeeRatePercent:    1,
		CreatedAt:         time.Now().UTC(),
	}))

	return &fixture{
		payments: payments,
		chain:    chain,
		events:   events,
		vault:    vault,
		machine:  machine,
	}
}

// seedPending creates a pending payment directly in the store. Base
// 1,000,000 at 1% with both fee allowances expects 1,370,000.
func (f *fixture) seedPending(t *testing.T) *models.Payment {
	t.Helper()

	address, encryptedKey, err := f.vault.MintAddress()
	require.NoError(t, err)

	now := time.Now().UTC()
	payment := &models.Payment{
		PaymentID:      fmt.Sprintf("pay_%s", uuid.New().String()),
		MerchantID:     "merch_1",
		UniqueAddress:  address,
		EncryptedKey:   encryptedKey,
		BaseAmount:     1_000_000,
		FeeRatePercent: 1,
		ExpectedAmount: 1_370_000,
		Status:         models.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(time.Hour),
	}
	require.NoError(t, f.payments.CreatePayment(context.Background(), payment))
	return payment
}

// seedConfirmed creates a payment that already received full funds.
// Mutators adjust the record before it is persisted.
func (f *fixture) seedConfirmed(t *testing.T, settleAfter time.Time, mutate ...func(*models.Payment)) *models.Payment {
	t.Helper()

	address, encryptedKey, err := f.vault.MintAddress()
	require.NoError(t, err)

	now := time.Now().UTC()
	confirmedAt := now.Add(-time.Minute)
	payment := &models.Payment{
		PaymentID:      fmt.Sprintf("pay_%s", uuid.New().String()),
		MerchantID:     "merch_1",
		UniqueAddress:  address,
		EncryptedKey:   encryptedKey,
		BaseAmount:     1_000_000,
		FeeRatePercent: 1,
		ExpectedAmount: 1_370_000,
		Status:         models.StatusConfirmed,
		ReceivedAmount: 1_370_000,
		ReceiveTxID:    "0xreceive",
		ConfirmedAt:    &confirmedAt,
		SettleAfter:    &settleAfter,
		CreatedAt:      now.Add(-time.Hour),
		UpdatedAt:      now,
		ExpiresAt:      now.Add(time.Hour),
	}
	for _, fn := range mutate {
		fn(payment)
	}
	require.NoError(t, f.payments.CreatePayment(context.Background(), payment))
	return payment
}

func (f *fixture) getPayment(t *testing.T, paymentID string) *models.Payment {
	t.Helper()
	payment, err := f.payments.GetPaymentByID(context.Background(), paymentID)
	require.NoError(t, err)
	return payment
}

func TestHandleTransferConfirmsPayment(t *testing.T) {
	f := newFixture(t, time.Hour)
	payment := f.seedPending(t)

	err := f.machine.HandleTransfer(context.Background(), payment, TransferEvent{
		TxID:        "0xabc",
		Sender:      "ST2SENDER0000000000000000000000000000000",
		Recipient:   payment.UniqueAddress,
		Amount:      1_370_000,
		BlockHeight: 12345,
	})
	require.NoError(t, err)

	stored := f.getPayment(t, payment.PaymentID)
	assert.Equal(t, models.StatusConfirmed, stored.Status)
	assert.Equal(t, int64(1_370_000), stored.ReceivedAmount)
	assert.Equal(t, "0xabc", stored.ReceiveTxID)
	require.NotNil(t, stored.ConfirmedAt)
	require.NotNil(t, stored.SettleAfter)
	assert.WithinDuration(t, stored.ConfirmedAt.Add(time.Hour), *stored.SettleAfter, time.Second)

	confirmed, ok := f.chain.ConfirmedAmount(payment.PaymentID)
	require.True(t, ok)
	assert.Equal(t, int64(1_370_000), confirmed)
	assert.NotEmpty(t, stored.ContractConfirmTxID)

	assert.Equal(t, []models.WebhookEventType{models.EventPaymentConfirmed}, f.events.EventTypes())
	events := f.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.StatusConfirmed, events[0].Data.Payment.Status)
}

func TestHandleTransferRedeliveryIsNoOp(t *testing.T) {
	f := newFixture(t, time.Hour)
	payment := f.seedPending(t)

	first := TransferEvent{TxID: "0xfirst", Recipient: payment.UniqueAddress, Amount: 1_370_000}
	require.NoError(t, f.machine.HandleTransfer(context.Background(), payment, first))

	// Redelivery arrives with the stale pending snapshot; the
	// compare-and-set must reject it quietly.
	stale := *payment
	stale.Status = models.StatusPending
	require.NoError(t, f.machine.HandleTransfer(context.Background(), &stale, first))

	// A fresh read routes through the status check instead
	fresh := f.getPayment(t, payment.PaymentID)
	require.NoError(t, f.machine.HandleTransfer(context.Background(), fresh, TransferEvent{
		TxID:      "0xsecond",
		Recipient: payment.UniqueAddress,
		Amount:    1_370_000,
	}))

	stored := f.getPayment(t, payment.PaymentID)
	assert.Equal(t, models.StatusConfirmed, stored.Status)
	assert.Equal(t, "0xfirst", stored.ReceiveTxID)
	assert.Equal(t, int64(1_370_000), stored.ReceivedAmount)
	assert.Equal(t, []models.WebhookEventType{models.EventPaymentConfirmed}, f.events.EventTypes())
}

func TestHandleTransferToleranceBoundary(t *testing.T) {
	t.Run("exactly 95 percent confirms", func(t *testing.T) {
		f := newFixture(t, time.Hour)
		payment := f.seedPending(t)

		err := f.machine.HandleTransfer(context.Background(), payment, TransferEvent{
			TxID:      "0xunder",
			Recipient: payment.UniqueAddress,
			Amount:    1_301_500,
		})
		require.NoError(t, err)

		stored := f.getPayment(t, payment.PaymentID)
		assert.Equal(t, models.StatusConfirmed, stored.Status)
		assert.Equal(t, int64(1_301_500), stored.ReceivedAmount)
	})

	t.Run("one microSTX below stays pending", func(t *testing.T) {
		f := newFixture(t, time.Hour)
		payment := f.seedPending(t)

		err := f.machine.HandleTransfer(context.Background(), payment, TransferEvent{
			TxID:      "0xshort",
			Recipient: payment.UniqueAddress,
			Amount:    1_301_499,
		})
		require.NoError(t, err)

		stored := f.getPayment(t, payment.PaymentID)
		assert.Equal(t, models.StatusPending, stored.Status)
		assert.Zero(t, stored.ReceivedAmount)
		assert.Empty(t, f.events.EventTypes())
	})
}

func TestHandleTransferAfterDeadlineExpires(t *testing.T) {
	f := newFixture(t, time.Hour)

	// Pending payment whose window already elapsed
	address, encryptedKey, err := f.vault.MintAddress()
	require.NoError(t, err)
	now := time.Now().UTC()
	payment := &models.Payment{
		PaymentID:      fmt.Sprintf("pay_%s", uuid.New().String()),
		MerchantID:     "merch_1",
		UniqueAddress:  address,
		EncryptedKey:   encryptedKey,
		BaseAmount:     1_000_000,
		FeeRatePercent: 1,
		ExpectedAmount: 1_370_000,
		Status:         models.StatusPending,
		CreatedAt:      now.Add(-2 * time.Hour),
		UpdatedAt:      now.Add(-2 * time.Hour),
		ExpiresAt:      now.Add(-time.Minute),
	}
	require.NoError(t, f.payments.CreatePayment(context.Background(), payment))

	err = f.machine.HandleTransfer(context.Background(), payment, TransferEvent{
		TxID:      "0xlate",
		Recipient: payment.UniqueAddress,
		Amount:    1_370_000,
	})
	require.NoError(t, err)

	stored := f.getPayment(t, payment.PaymentID)
	assert.Equal(t, models.StatusExpired, stored.Status)
	assert.Equal(t, "payment window elapsed", stored.ErrorMessage)
	assert.Zero(t, stored.ReceivedAmount)
	assert.Empty(t, stored.ReceiveTxID)
	assert.Equal(t, []models.WebhookEventType{models.EventPaymentExpired}, f.events.EventTypes())
}

func TestHandleTransferForTerminalPaymentDiscarded(t *testing.T) {
	f := newFixture(t, time.Hour)
	payment := f.seedPending(t)

	_, err := f.machine.Cancel(context.Background(), payment.PaymentID, "merch_1")
	require.NoError(t, err)

	expired := f.getPayment(t, payment.PaymentID)
	err = f.machine.HandleTransfer(context.Background(), expired, TransferEvent{
		TxID:      "0xzombie",
		Recipient: payment.UniqueAddress,
		Amount:    1_370_000,
	})
	require.NoError(t, err)

	stored := f.getPayment(t, payment.PaymentID)
	assert.Equal(t, models.StatusExpired, stored.Status)
	assert.Zero(t, stored.ReceivedAmount)
}

func TestCancelPendingPayment(t *testing.T) {
	f := newFixture(t, time.Hour)
	payment := f.seedPending(t)

	cancelled, err := f.machine.Cancel(context.Background(), payment.PaymentID, "merch_1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, cancelled.Status)
	assert.Equal(t, "cancelled by merchant", cancelled.ErrorMessage)

	stored := f.getPayment(t, payment.PaymentID)
	assert.Equal(t, models.StatusExpired, stored.Status)
	assert.Equal(t, "cancelled by merchant", stored.ErrorMessage)
	assert.Equal(t, []models.WebhookEventType{models.EventPaymentCancelled}, f.events.EventTypes())
}

func TestCancelConfirmedPaymentRejected(t *testing.T) {
	f := newFixture(t, time.Hour)
	payment := f.seedConfirmed(t, time.Now().UTC().Add(time.Hour))

	current, err := f.machine.Cancel(context.Background(), payment.PaymentID, "merch_1")
	require.Error(t, err)

	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	assert.Equal(t, "NOT_CANCELLABLE", appErr.Code)
	assert.Equal(t, 409, appErr.StatusCode)

	require.NotNil(t, current)
	assert.Equal(t, models.StatusConfirmed, current.Status)
	assert.Empty(t, f.events.EventTypes())
}

func TestCancelForeignMerchantRejected(t *testing.T) {
	f := newFixture(t, time.Hour)
	payment := f.seedPending(t)

	_, err := f.machine.Cancel(context.Background(), payment.PaymentID, "merch_2")
	require.Error(t, err)

	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	assert.Equal(t, "PAYMENT_NOT_FOUND", appErr.Code)

	stored := f.getPayment(t, payment.PaymentID)
	assert.Equal(t, models.StatusPending, stored.Status)
}

func TestCancelAndConfirmRaceSingleWinner(t *testing.T) {
	f := newFixture(t, time.Hour)
	payment := f.seedPending(t)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = f.machine.HandleTransfer(context.Background(), payment, TransferEvent{
			TxID:      "0xrace",
			Recipient: payment.UniqueAddress,
			Amount:    1_370_000,
		})
	}()
	go func() {
		defer wg.Done()
		_, _ = f.machine.Cancel(context.Background(), payment.PaymentID, "merch_1")
	}()
	wg.Wait()

	stored := f.getPayment(t, payment.PaymentID)
	types := f.events.EventTypes()

	switch stored.Status {
	case models.StatusConfirmed:
		assert.Equal(t, "0xrace", stored.ReceiveTxID)
		assert.Contains(t, types, models.EventPaymentConfirmed)
		assert.NotContains(t, types, models.EventPaymentCancelled)
	case models.StatusExpired:
		assert.Zero(t, stored.ReceivedAmount)
		assert.Contains(t, types, models.EventPaymentCancelled)
		assert.NotContains(t, types, models.EventPaymentConfirmed)
	default:
		t.Fatalf("payment ended in unexpected status %q", stored.Status)
	}
	assert.Len(t, types, 1)
}

func TestCreatePayment(t *testing.T) {
	f := newFixture(t, time.Hour)

	payment, err := f.machine.Create(context.Background(), &models.CreatePaymentRequest{
		MerchantID:       "merch_1",
		BaseAmount:       1_000_000,
		Description:      "order #42",
		Metadata:         map[string]string{"order_id": "42"},
		ExpiresInMinutes: 30,
	}, "idem-key-1")
	require.NoError(t, err)

	assert.Contains(t, payment.PaymentID, "pay_")
	assert.True(t, validator.IsStacksAddress(payment.UniqueAddress))
	assert.Equal(t, models.StatusPending, payment.Status)
	assert.Equal(t, int64(1), payment.FeeRatePercent)
	assert.Equal(t, int64(1_370_000), payment.ExpectedAmount)
	assert.WithinDuration(t, time.Now().UTC().Add(30*time.Minute), payment.ExpiresAt, 5*time.Second)

	// Key material round-trips through the vault and stays out of sight
	key, err := f.vault.DecryptKey(payment.EncryptedKey)
	require.NoError(t, err)
	assert.Len(t, key, 32)

	stored := f.getPayment(t, payment.PaymentID)
	assert.Equal(t, "idem-key-1", stored.IdempotencyKey)
	assert.Equal(t, "order #42", stored.Description)
	assert.Equal(t, "42", stored.Metadata["order_id"])
	assert.NotEmpty(t, stored.ContractRegisterTxID)

	reg, ok := f.chain.Registration(payment.PaymentID)
	require.True(t, ok)
	assert.Equal(t, merchantAddress, reg.MerchantAddress)
	assert.Equal(t, payment.UniqueAddress, reg.UniqueAddress)
	assert.Equal(t, int64(1_370_000), reg.ExpectedAmount)

	assert.Equal(t, []models.WebhookEventType{models.EventPaymentCreated}, f.events.EventTypes())
}

func TestCreatePaymentRateOverride(t *testing.T) {
	f := newFixture(t, time.Hour)

	payment, err := f.machine.Create(context.Background(), &models.CreatePaymentRequest{
		MerchantID:     "merch_1",
		BaseAmount:     1_000_000,
		FeeRatePercent: 3,
	}, "idem-key-2")
	require.NoError(t, err)

	assert.Equal(t, int64(3), payment.FeeRatePercent)
	assert.Equal(t, int64(1_390_000), payment.ExpectedAmount)
	assert.WithinDuration(t, time.Now().UTC().Add(time.Hour), payment.ExpiresAt, 5*time.Second)
}

func TestCreatePaymentUnknownMerchant(t *testing.T) {
	f := newFixture(t, time.Hour)

	_, err := f.machine.Create(context.Background(), &models.CreatePaymentRequest{
		MerchantID: "merch_ghost",
		BaseAmount: 1_000_000,
	}, "idem-key-3")
	require.Error(t, err)

	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	assert.Equal(t, "MERCHANT_NOT_FOUND", appErr.Code)
}

func TestCreatePaymentSurvivesRegisterFailure(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.chain.FailNext("register", fmt.Errorf("node unavailable"))

	payment, err := f.machine.Create(context.Background(), &models.CreatePaymentRequest{
		MerchantID: "merch_1",
		BaseAmount: 1_000_000,
	}, "idem-key-4")
	require.NoError(t, err)

	stored := f.getPayment(t, payment.PaymentID)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Empty(t, stored.ContractRegisterTxID)
	assert.Equal(t, []models.WebhookEventType{models.EventPaymentCreated}, f.events.EventTypes())
}
