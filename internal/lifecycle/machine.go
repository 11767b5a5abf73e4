package lifecycle

import (
	"context"
	"time"

	"github.com/TheSoftNode/StacksPay-sub004/internal/contract"
	apperrors "github.com/TheSoftNode/StacksPay-sub004/internal/errors"
	"github.com/TheSoftNode/StacksPay-sub004/internal/fees"
	"github.com/TheSoftNode/StacksPay-sub004/internal/logger"
	"github.com/TheSoftNode/StacksPay-sub004/internal/models"
	"github.com/TheSoftNode/StacksPay-sub004/internal/notify"
	"github.com/TheSoftNode/StacksPay-sub004/internal/store"
	"github.com/TheSoftNode/StacksPay-sub004/internal/wallet"
)

// SettlementEnqueuer schedules a settlement job with delayed visibility.
// Optional: when absent, the periodic sweep alone drives settlement.
type SettlementEnqueuer interface {
	EnqueueSettlement(ctx context.Context, job *models.SettlementJob, delaySeconds int) error
}

// TransferEvent is a qualifying STX transfer observed on-chain
type TransferEvent struct {
	TxID        string
	Sender      string
	Recipient   string
	Amount      int64
	BlockHeight int64
}

// Deps are the injected collaborators of the state machine
type Deps struct {
	Payments  store.PaymentStore
	Merchants store.MerchantStore
	Contract  contract.Facade
	Notifier  notify.Notifier
	Vault     *wallet.Vault

	// Settlements may be nil; the sweep covers settlement then.
	Settlements SettlementEnqueuer

	// SettlementDelay is the wait between confirmation and settlement.
	SettlementDelay time.Duration

	// DefaultExpiry is the payment window applied when the creation
	// request does not specify one.
	DefaultExpiry time.Duration
}

// Machine drives all payment status transitions. Every mutation goes
// through the store's compare-and-set; a lost race is a no-op. Contract
// calls, notifications and settlement scheduling are best-effort side
// effects issued after the primary write and never gate it.
type Machine struct {
	payments        store.PaymentStore
	merchants       store.MerchantStore
	contract        contract.Facade
	notifier        notify.Notifier
	executor        *Executor
	settlements     SettlementEnqueuer
	settlementDelay time.Duration
	defaultExpiry   time.Duration
	vault           *wallet.Vault

	// now is swappable for tests
	now func() time.Time
}

// NewMachine creates a state machine from its dependencies
func NewMachine(deps Deps) *Machine {
	return &Machine{
		payments:        deps.Payments,
		merchants:       deps.Merchants,
		contract:        deps.Contract,
		notifier:        deps.Notifier,
		executor:        NewExecutor(deps.Vault, deps.Contract),
		settlements:     deps.Settlements,
		settlementDelay: deps.SettlementDelay,
		defaultExpiry:   deps.DefaultExpiry,
		vault:           deps.Vault,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// HandleTransfer routes an observed transfer for a payment. The payment
// snapshot comes from the ingestion lookup; every precondition is
// re-validated here and the compare-and-set re-validates atomically.
func (m *Machine) HandleTransfer(ctx context.Context, payment *models.Payment, ev TransferEvent) error {
	log := logger.Fields{
		"payment_id": payment.PaymentID,
		"tx_id":      ev.TxID,
		"amount":     ev.Amount,
	}

	if payment.Status != models.StatusPending {
		// Stale or duplicate event for an already-finalized payment
		logger.Debug("Transfer for non-pending payment discarded", log)
		return nil
	}

	now := m.now()
	if now.After(payment.ExpiresAt) {
		logger.Info("Transfer arrived after expiry deadline", log)
		return m.expire(ctx, payment, "payment window elapsed", models.EventPaymentExpired)
	}

	if !fees.MeetsTolerance(ev.Amount, payment.ExpectedAmount) {
		logger.Warn("Transfer below tolerance, payment stays pending", logger.Fields{
			"payment_id": payment.PaymentID,
			"tx_id":      ev.TxID,
			"amount":     ev.Amount,
			"expected":   payment.ExpectedAmount,
		})
		return nil
	}

	return m.confirm(ctx, payment, ev, now)
}

// confirm applies the pending -> confirmed transition and its side
// effects
func (m *Machine) confirm(ctx context.Context, payment *models.Payment, ev TransferEvent, now time.Time) error {
	settleAfter := now.Add(m.settlementDelay)

	applied, err := m.payments.TransitionStatus(ctx, payment.PaymentID, models.StatusPending, store.StatusUpdate{
		To:             models.StatusConfirmed,
		ReceivedAmount: ev.Amount,
		ReceiveTxID:    ev.TxID,
		ConfirmedAt:    &now,
		SettleAfter:    &settleAfter,
	})
	if err != nil {
		return err
	}
	if !applied {
		logger.Info("Confirmation lost the status race, no-op", logger.Fields{
			"payment_id": payment.PaymentID,
			"tx_id":      ev.TxID,
		})
		return nil
	}

	payment.Status = models.StatusConfirmed
	payment.ReceivedAmount = ev.Amount
	payment.ReceiveTxID = ev.TxID
	payment.ConfirmedAt = &now
	payment.SettleAfter = &settleAfter
	payment.UpdatedAt = now

	// Best-effort side effects. Failures are logged, never unwound.
	if txID, err := m.contract.ConfirmReceived(ctx, payment.PaymentID, ev.Amount, ev.TxID); err != nil {
		logger.Error("Contract confirm call failed", logger.Fields{
			"payment_id": payment.PaymentID,
			"error":      err.Error(),
		})
	} else if err := m.payments.SetContractLinkage(ctx, payment.PaymentID, store.LinkageConfirm, txID); err != nil {
		logger.Error("Failed to record confirm linkage", logger.Fields{
			"payment_id": payment.PaymentID,
			"error":      err.Error(),
		})
	} else {
		payment.ContractConfirmTxID = txID
	}

	if err := m.notifier.Notify(ctx, models.EventPaymentConfirmed, payment); err != nil {
		logger.Error("Failed to notify payment.confirmed", logger.Fields{
			"payment_id": payment.PaymentID,
			"error":      err.Error(),
		})
	}

	if m.settlements != nil {
		job := &models.SettlementJob{PaymentID: payment.PaymentID, Attempt: 1}
		delay := int(m.settlementDelay / time.Second)
		if err := m.settlements.EnqueueSettlement(ctx, job, delay); err != nil {
			logger.Error("Failed to enqueue settlement job", logger.Fields{
				"payment_id": payment.PaymentID,
				"error":      err.Error(),
			})
		}
	}

	logger.Info("Payment confirmed", logger.Fields{
		"payment_id":      payment.PaymentID,
		"received_amount": ev.Amount,
		"receive_tx_id":   ev.TxID,
		"settle_after":    settleAfter.Format(time.RFC3339),
	})
	return nil
}

// Cancel applies a merchant-initiated pending -> expired transition. A
// race lost to confirmation or expiry is reported through the returned
// payment's current status, not as a stealth success.
func (m *Machine) Cancel(ctx context.Context, paymentID, merchantID string) (*models.Payment, error) {
	payment, err := m.payments.GetPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	// Ownership check: a foreign payment id behaves like an unknown one
	if payment.MerchantID != merchantID {
		return nil, apperrors.ErrPaymentNotFound(paymentID)
	}

	if payment.Status != models.StatusPending {
		return payment, apperrors.ErrNotCancellable(paymentID, string(payment.Status))
	}

	applied, err := m.payments.TransitionStatus(ctx, paymentID, models.StatusPending, store.StatusUpdate{
		To:           models.StatusExpired,
		ErrorMessage: "cancelled by merchant",
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		// Another event advanced the payment first; report where it is now
		current, err := m.payments.GetPaymentByID(ctx, paymentID)
		if err != nil {
			return nil, err
		}
		logger.Info("Cancel lost the status race", logger.Fields{
			"payment_id": paymentID,
			"status":     current.Status,
		})
		return current, apperrors.ErrNotCancellable(paymentID, string(current.Status))
	}

	payment.Status = models.StatusExpired
	payment.ErrorMessage = "cancelled by merchant"
	payment.UpdatedAt = m.now()

	if err := m.notifier.Notify(ctx, models.EventPaymentCancelled, payment); err != nil {
		logger.Error("Failed to notify payment.cancelled", logger.Fields{
			"payment_id": paymentID,
			"error":      err.Error(),
		})
	}

	logger.Info("Payment cancelled", logger.Fields{"payment_id": paymentID})
	return payment, nil
}

// expire applies the deadline-driven pending -> expired transition
func (m *Machine) expire(ctx context.Context, payment *models.Payment, reason string, event models.WebhookEventType) error {
	applied, err := m.payments.TransitionStatus(ctx, payment.PaymentID, models.StatusPending, store.StatusUpdate{
		To:           models.StatusExpired,
		ErrorMessage: reason,
	})
	if err != nil {
		return err
	}
	if !applied {
		logger.Debug("Expiry lost the status race, no-op", logger.Fields{
			"payment_id": payment.PaymentID,
		})
		return nil
	}

	payment.Status = models.StatusExpired
	payment.ErrorMessage = reason
	payment.UpdatedAt = m.now()

	if err := m.notifier.Notify(ctx, event, payment); err != nil {
		logger.Error("Failed to notify expiry", logger.Fields{
			"payment_id": payment.PaymentID,
			"event":      string(event),
			"error":      err.Error(),
		})
	}

	logger.Info("Payment expired", logger.Fields{
		"payment_id": payment.PaymentID,
		"reason":     reason,
	})
	return nil
}
