package models

import "time"

// PaymentStatus represents the current state of a payment
type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusConfirmed PaymentStatus = "confirmed"
	StatusSettled   PaymentStatus = "settled"
	StatusExpired   PaymentStatus = "expired"
	StatusFailed    PaymentStatus = "failed"
)

// IsTerminal reports whether no further transition can leave the status
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case StatusSettled, StatusExpired, StatusFailed:
		return true
	default:
		return false
	}
}

// Payment represents a payment record in the system. All amounts are
// denominated in microSTX. EncryptedKey is deliberately excluded from JSON:
// it is persisted but never serialized into API responses or webhooks.
type Payment struct {
	PaymentID      string        `json:"payment_id" dynamodbav:"payment_id"`
	MerchantID     string        `json:"merchant_id" dynamodbav:"merchant_id"`
	IdempotencyKey string        `json:"-" dynamodbav:"idempotency_key"`
	UniqueAddress  string        `json:"unique_address" dynamodbav:"unique_address"`
	EncryptedKey   string        `json:"-" dynamodbav:"encrypted_key"`
	BaseAmount     int64         `json:"base_amount" dynamodbav:"base_amount"`
	FeeRatePercent int64         `json:"fee_rate_percent" dynamodbav:"fee_rate_percent"`
	ExpectedAmount int64         `json:"expected_amount" dynamodbav:"expected_amount"`
	Status         PaymentStatus `json:"status" dynamodbav:"status"`

	ReceivedAmount int64  `json:"received_amount,omitempty" dynamodbav:"received_amount,omitempty"`
	ReceiveTxID    string `json:"receive_tx_id,omitempty" dynamodbav:"receive_tx_id,omitempty"`

	FeeAmount int64 `json:"fee_amount,omitempty" dynamodbav:"fee_amount,omitempty"`
	NetAmount int64 `json:"net_amount,omitempty" dynamodbav:"net_amount,omitempty"`

	// Best-effort on-chain linkage. Absence never blocks status progression.
	ContractRegisterTxID string `json:"contract_register_tx_id,omitempty" dynamodbav:"contract_register_tx_id,omitempty"`
	ContractConfirmTxID  string `json:"contract_confirm_tx_id,omitempty" dynamodbav:"contract_confirm_tx_id,omitempty"`
	ContractSettleTxID   string `json:"contract_settle_tx_id,omitempty" dynamodbav:"contract_settle_tx_id,omitempty"`
	SettlementTxID       string `json:"settlement_tx_id,omitempty" dynamodbav:"settlement_tx_id,omitempty"`

	Description  string            `json:"description,omitempty" dynamodbav:"description,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty" dynamodbav:"metadata,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty" dynamodbav:"error_message,omitempty"`

	CreatedAt   time.Time  `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" dynamodbav:"updated_at"`
	ExpiresAt   time.Time  `json:"expires_at" dynamodbav:"expires_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty" dynamodbav:"confirmed_at,omitempty"`
	SettledAt   *time.Time `json:"settled_at,omitempty" dynamodbav:"settled_at,omitempty"`

	// SettleAfter is the persisted due-at for deferred settlement. Set with
	// the confirmed transition so a restart never loses a scheduled
	// settlement. Stored as epoch seconds so the due-settlement index can
	// range on it.
	SettleAfter *time.Time `json:"settle_after,omitempty" dynamodbav:"settle_after,unixtime,omitempty"`
}

// CreatePaymentRequest represents the incoming payment creation request
type CreatePaymentRequest struct {
	MerchantID       string            `json:"merchant_id"`
	BaseAmount       int64             `json:"base_amount"`
	FeeRatePercent   int64             `json:"fee_rate_percent,omitempty"`
	Description      string            `json:"description,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	ExpiresInMinutes int64             `json:"expires_in_minutes,omitempty"`
}

// CancelPaymentRequest represents a merchant-initiated cancellation
type CancelPaymentRequest struct {
	MerchantID string `json:"merchant_id"`
}

// PaymentPage represents one page of a merchant-scoped payment listing
type PaymentPage struct {
	Payments   []Payment `json:"payments"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// SettlementJob represents a message on the settlement queue. The worker
// re-reads the payment record before acting, so the job carries only the
// reference and bookkeeping for logging.
type SettlementJob struct {
	PaymentID string `json:"payment_id"`
	Attempt   int    `json:"attempt"`
}
