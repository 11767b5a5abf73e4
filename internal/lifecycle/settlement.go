package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TheSoftNode/StacksPay-sub004/internal/contract"
	apperrors "github.com/TheSoftNode/StacksPay-sub004/internal/errors"
	"github.com/TheSoftNode/StacksPay-sub004/internal/fees"
	"github.com/TheSoftNode/StacksPay-sub004/internal/logger"
	"github.com/TheSoftNode/StacksPay-sub004/internal/models"
	"github.com/TheSoftNode/StacksPay-sub004/internal/store"
	"github.com/TheSoftNode/StacksPay-sub004/internal/validator"
	"github.com/TheSoftNode/StacksPay-sub004/internal/wallet"
)

// NotDueError reports a settlement attempted before its delay elapsed.
// Workers use it to re-schedule the job instead of failing it.
type NotDueError struct {
	PaymentID string
	Due       time.Time
}

func (e *NotDueError) Error() string {
	return fmt.Sprintf("settlement for payment '%s' is not due until %s", e.PaymentID, e.Due.Format(time.RFC3339))
}

// Executor performs the settlement transfer for a single payment. It is
// the only component that handles decrypted key material, and only for
// the duration of the transfer call.
type Executor struct {
	vault  *wallet.Vault
	facade contract.Facade
}

// NewExecutor creates a settlement executor
func NewExecutor(vault *wallet.Vault, facade contract.Facade) *Executor {
	return &Executor{vault: vault, facade: facade}
}

// Execute moves the net amount from the payment's unique address to the
// merchant settlement address and returns the transfer transaction id.
// Callers own the compare-and-set gate that makes this single-shot.
func (e *Executor) Execute(ctx context.Context, payment *models.Payment, toAddress string, netAmount int64) (string, error) {
	if netAmount <= 0 {
		return "", fmt.Errorf("refusing settlement transfer of %d microSTX", netAmount)
	}

	key, err := e.vault.DecryptKey(payment.EncryptedKey)
	if err != nil {
		return "", fmt.Errorf("failed to unlock payment address: %w", err)
	}

	txID, err := e.facade.Transfer(ctx, payment.UniqueAddress, toAddress, netAmount, key, payment.PaymentID)

	// Drop key material before returning
	for i := range key {
		key[i] = 0
	}

	if err != nil {
		return "", err
	}
	return txID, nil
}

// Settle runs the confirmed -> settled transition for one payment.
// Re-invocation is safe: a payment that already left confirmed is a
// no-op, and a payment whose delay has not elapsed yields NotDueError.
// Execution failures are terminal and mark the payment failed.
func (m *Machine) Settle(ctx context.Context, paymentID string) error {
	payment, err := m.payments.GetPaymentByID(ctx, paymentID)
	if err != nil {
		return err
	}

	if payment.Status != models.StatusConfirmed {
		logger.Debug("Settlement skipped for non-confirmed payment", logger.Fields{
			"payment_id": paymentID,
			"status":     payment.Status,
		})
		return nil
	}

	now := m.now()
	if payment.SettleAfter != nil && now.Before(*payment.SettleAfter) {
		return &NotDueError{PaymentID: paymentID, Due: *payment.SettleAfter}
	}

	merchant, err := m.merchants.GetMerchant(ctx, payment.MerchantID)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.Code == "MERCHANT_NOT_FOUND" {
			// Hard precondition failure, not a retryable condition
			return m.failSettlement(ctx, payment, "merchant record missing at settlement time")
		}
		return err
	}
	if !validator.IsStacksAddress(merchant.SettlementAddress) {
		return m.failSettlement(ctx, payment, "merchant settlement address is missing or invalid")
	}

	feeAmount, netAmount := fees.SettlementSplit(payment.ReceivedAmount, payment.FeeRatePercent)

	txID, err := m.executor.Execute(ctx, payment, merchant.SettlementAddress, netAmount)
	if err != nil {
		logger.Error("Settlement transfer failed", logger.Fields{
			"payment_id": paymentID,
			"net_amount": netAmount,
			"error":      err.Error(),
		})
		return m.failSettlement(ctx, payment, fmt.Sprintf("settlement transfer failed: %v", err))
	}

	applied, err := m.payments.TransitionStatus(ctx, paymentID, models.StatusConfirmed, store.StatusUpdate{
		To:             models.StatusSettled,
		FeeAmount:      feeAmount,
		NetAmount:      netAmount,
		SettledAt:      &now,
		SettlementTxID: txID,
	})
	if err != nil {
		logger.Error("Settlement transfer submitted but status write failed", logger.Fields{
			"payment_id":       paymentID,
			"settlement_tx_id": txID,
			"error":            err.Error(),
		})
		return err
	}
	if !applied {
		// Funds already moved; a competing writer here means the
		// single-shot gate was bypassed upstream. Make it loud.
		logger.Error("Settlement status race lost after transfer", logger.Fields{
			"payment_id":       paymentID,
			"settlement_tx_id": txID,
		})
		return nil
	}

	payment.Status = models.StatusSettled
	payment.FeeAmount = feeAmount
	payment.NetAmount = netAmount
	payment.SettledAt = &now
	payment.SettlementTxID = txID
	payment.UpdatedAt = now

	// Best-effort side effects
	if contractTxID, err := m.contract.Settle(ctx, paymentID); err != nil {
		logger.Error("Contract settle call failed", logger.Fields{
			"payment_id": paymentID,
			"error":      err.Error(),
		})
	} else if err := m.payments.SetContractLinkage(ctx, paymentID, store.LinkageSettle, contractTxID); err != nil {
		logger.Error("Failed to record settle linkage", logger.Fields{
			"payment_id": paymentID,
			"error":      err.Error(),
		})
	} else {
		payment.ContractSettleTxID = contractTxID
	}

	if err := m.notifier.Notify(ctx, models.EventPaymentSettled, payment); err != nil {
		logger.Error("Failed to notify payment.settled", logger.Fields{
			"payment_id": paymentID,
			"error":      err.Error(),
		})
	}

	logger.Info("Payment settled", logger.Fields{
		"payment_id":       paymentID,
		"fee_amount":       feeAmount,
		"net_amount":       netAmount,
		"settlement_tx_id": txID,
	})
	return nil
}

// failSettlement marks a confirmed payment terminally failed
func (m *Machine) failSettlement(ctx context.Context, payment *models.Payment, reason string) error {
	applied, err := m.payments.TransitionStatus(ctx, payment.PaymentID, models.StatusConfirmed, store.StatusUpdate{
		To:           models.StatusFailed,
		ErrorMessage: reason,
	})
	if err != nil {
		return err
	}
	if !applied {
		logger.Info("Failure mark lost the status race, no-op", logger.Fields{
			"payment_id": payment.PaymentID,
		})
		return nil
	}

	payment.Status = models.StatusFailed
	payment.ErrorMessage = reason
	payment.UpdatedAt = m.now()

	if err := m.notifier.Notify(ctx, models.EventPaymentFailed, payment); err != nil {
		logger.Error("Failed to notify payment.failed", logger.Fields{
			"payment_id": payment.PaymentID,
			"error":      err.Error(),
		})
	}

	logger.Error("Payment failed", logger.Fields{
		"payment_id": payment.PaymentID,
		"reason":     reason,
	})
	return apperrors.ErrSettlementFailed(payment.PaymentID, errors.New(reason))
}

// SweepDueSettlements settles every confirmed payment whose delay has
// elapsed. Used by the periodic sweep and operational tooling; errors on
// individual payments are logged and do not stop the sweep.
func (m *Machine) SweepDueSettlements(ctx context.Context, limit int) (int, error) {
	due, err := m.payments.ListDueSettlements(ctx, m.now(), limit)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, p := range due {
		if err := m.Settle(ctx, p.PaymentID); err != nil {
			var notDue *NotDueError
			if errors.As(err, &notDue) {
				continue
			}
			logger.Error("Sweep settlement failed", logger.Fields{
				"payment_id": p.PaymentID,
				"error":      err.Error(),
			})
			continue
		}
		settled++
	}

	if len(due) > 0 {
		logger.Info("Settlement sweep complete", logger.Fields{
			"due":     len(due),
			"settled": settled,
		})
	}
	return settled, nil
}
