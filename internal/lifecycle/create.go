package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/TheSoftNode/StacksPay-sub004/internal/fees"
	"github.com/TheSoftNode/StacksPay-sub004/internal/logger"
	"github.com/TheSoftNode/StacksPay-sub004/internal/models"
	"github.com/TheSoftNode/StacksPay-sub004/internal/store"
)

// stacksBlockTime approximates the anchor block cadence used to size
// the on-chain registration window.
const stacksBlockTime = 10 * time.Minute

// Create mints a deposit address, snapshots the fee terms and persists
// a new pending payment. Contract registration and the created
// notification are best-effort side effects of the persisted record.
func (m *Machine) Create(ctx context.Context, req *models.CreatePaymentRequest, idempotencyKey string) (*models.Payment, error) {
	merchant, err := m.merchants.GetMerchant(ctx, req.MerchantID)
	if err != nil {
		return nil, err
	}

	rate := req.FeeRatePercent
	if rate <= 0 {
		rate = merchant.FeeRatePercent
	}

	expiry := m.defaultExpiry
	if req.ExpiresInMinutes > 0 {
		expiry = time.Duration(req.ExpiresInMinutes) * time.Minute
	}

	address, encryptedKey, err := m.vault.MintAddress()
	if err != nil {
		return nil, err
	}

	totalExpected, platformFee := fees.ComputeTotal(
		req.BaseAmount,
		rate,
		fees.SettlementFeeAllowance,
		fees.TransferFeeAllowance,
	)

	now := m.now()
	payment := &models.Payment{
		PaymentID:      fmt.Sprintf("pay_%s", uuid.New().String()),
		MerchantID:     req.MerchantID,
		IdempotencyKey: idempotencyKey,
		UniqueAddress:  address,
		EncryptedKey:   encryptedKey,
		BaseAmount:     req.BaseAmount,
		FeeRatePercent: rate,
		ExpectedAmount: totalExpected,
		Status:         models.StatusPending,
		Description:    req.Description,
		Metadata:       req.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(expiry),
	}

	if err := m.payments.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	logger.Info("Payment created", logger.Fields{
		"payment_id":      payment.PaymentID,
		"merchant_id":     payment.MerchantID,
		"base_amount":     payment.BaseAmount,
		"platform_fee":    platformFee,
		"expected_amount": payment.ExpectedAmount,
		"expires_at":      payment.ExpiresAt.Format(time.RFC3339),
	})

	// Best-effort side effects. The payment is live regardless.
	expiryBlocks := int64(expiry/stacksBlockTime) + 1
	if txID, err := m.contract.Register(ctx, payment.PaymentID, merchant.SettlementAddress, address, totalExpected, payment.Description, expiryBlocks); err != nil {
		logger.Error("Contract registration failed", logger.Fields{
			"payment_id": payment.PaymentID,
			"error":      err.Error(),
		})
	} else if err := m.payments.SetContractLinkage(ctx, payment.PaymentID, store.LinkageRegister, txID); err != nil {
		logger.Error("Failed to record register linkage", logger.Fields{
			"payment_id": payment.PaymentID,
			"error":      err.Error(),
		})
	} else {
		payment.ContractRegisterTxID = txID
	}

	if err := m.notifier.Notify(ctx, models.EventPaymentCreated, payment); err != nil {
		logger.Error("Failed to notify payment.created", logger.Fields{
			"payment_id": payment.PaymentID,
			"error":      err.Error(),
		})
	}

	return payment, nil
}
