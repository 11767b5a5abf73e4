package store

import (
	"context"
	"time"

	"github.com/TheSoftNode/StacksPay-sub004/internal/models"
)

// LinkageField names a contract-linkage attribute on the payment record.
// Linkage writes are observational and never touch status.
type LinkageField string

const (
	LinkageRegister LinkageField = "contract_register_tx_id"
	LinkageConfirm  LinkageField = "contract_confirm_tx_id"
	LinkageSettle   LinkageField = "contract_settle_tx_id"
)

// StatusUpdate carries a target status plus the sibling fields written in
// the same conditional update. Zero-valued fields are left untouched.
type StatusUpdate struct {
	To models.PaymentStatus

	// pending -> confirmed
	ReceivedAmount int64
	ReceiveTxID    string
	ConfirmedAt    *time.Time
	SettleAfter    *time.Time

	// confirmed -> settled
	FeeAmount      int64
	NetAmount      int64
	SettledAt      *time.Time
	SettlementTxID string

	// terminal exits
	ErrorMessage string
}

// PaymentStore is the durable payment record table. All status mutation
// goes through TransitionStatus, a compare-and-set on the current status:
// it returns (false, nil) when another writer advanced the record first,
// which callers treat as a no-op rather than an error.
type PaymentStore interface {
	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentByID(ctx context.Context, paymentID string) (*models.Payment, error)

	// GetPaymentByAddress resolves a payment by its one-time receiving
	// address. Returns (nil, nil) when no payment owns the address.
	GetPaymentByAddress(ctx context.Context, uniqueAddress string) (*models.Payment, error)

	// GetPaymentByIdempotencyKey returns (nil, nil) when no payment was
	// created under the key.
	GetPaymentByIdempotencyKey(ctx context.Context, idempotencyKey string) (*models.Payment, error)

	ListPaymentsByMerchant(ctx context.Context, merchantID string, limit int, cursor string) (*models.PaymentPage, error)

	// ListDueSettlements returns confirmed payments whose settle_after has
	// passed, oldest first. Backs the settlement sweep.
	ListDueSettlements(ctx context.Context, dueBy time.Time, limit int) ([]models.Payment, error)

	TransitionStatus(ctx context.Context, paymentID string, from models.PaymentStatus, update StatusUpdate) (bool, error)

	// SetContractLinkage records a contract tx id on an existing payment.
	SetContractLinkage(ctx context.Context, paymentID string, field LinkageField, txID string) error
}

// MerchantStore reads merchant accounts. The gateway never mutates them.
type MerchantStore interface {
	GetMerchant(ctx context.Context, merchantID string) (*models.Merchant, error)
}
