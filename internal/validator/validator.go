package validator

import (
	"github.com/TheSoftNode/StacksPay-sub004/internal/errors"
	"github.com/TheSoftNode/StacksPay-sub004/internal/models"
)

// maxBaseAmount caps a single payment at 1M STX in microSTX.
const maxBaseAmount = 1_000_000_000_000

// maxExpiryMinutes caps the payment window at one week.
const maxExpiryMinutes = 7 * 24 * 60

// c32Alphabet is the character set Stacks addresses are encoded with
// (Crockford base32, no I, L, O or U).
const c32Alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// ValidateCreatePaymentRequest validates a payment creation request
func ValidateCreatePaymentRequest(req *models.CreatePaymentRequest) error {
	// Validate merchant reference
	if req.MerchantID == "" {
		return errors.ErrValidation("merchant_id", "is required")
	}

	if len(req.MerchantID) < 3 || len(req.MerchantID) > 100 {
		return errors.ErrValidation("merchant_id", "must be between 3 and 100 characters")
	}

	// Validate amount
	if req.BaseAmount <= 0 {
		return errors.ErrValidation("base_amount", "must be greater than 0")
	}

	if req.BaseAmount > maxBaseAmount {
		return errors.ErrValidation("base_amount", "exceeds maximum allowed amount")
	}

	// Validate fee rate. Zero is allowed; the merchant's configured rate is
	// applied when the field is omitted.
	if req.FeeRatePercent < 0 || req.FeeRatePercent > 100 {
		return errors.ErrValidation("fee_rate_percent", "must be between 0 and 100")
	}

	if req.ExpiresInMinutes < 0 || req.ExpiresInMinutes > maxExpiryMinutes {
		return errors.ErrValidation("expires_in_minutes", "must be between 0 and 10080")
	}

	if len(req.Description) > 500 {
		return errors.ErrValidation("description", "must not exceed 500 characters")
	}

	if len(req.Metadata) > 20 {
		return errors.ErrValidation("metadata", "must not exceed 20 entries")
	}

	return nil
}

// ValidateCancelPaymentRequest validates a merchant cancel request
func ValidateCancelPaymentRequest(paymentID string, req *models.CancelPaymentRequest) error {
	if paymentID == "" {
		return errors.ErrValidation("payment_id", "is required")
	}

	if req.MerchantID == "" {
		return errors.ErrValidation("merchant_id", "is required")
	}

	return nil
}

// ValidateIdempotencyKey validates an idempotency key
func ValidateIdempotencyKey(key string) error {
	if key == "" {
		return errors.ErrMissingHeader("Idempotency-Key")
	}

	if len(key) < 10 || len(key) > 255 {
		return errors.ErrValidation("Idempotency-Key", "must be between 10 and 255 characters")
	}

	// Only allow alphanumeric, hyphens, and underscores
	for _, c := range key {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_') {
			return errors.ErrValidation("Idempotency-Key", "must contain only alphanumeric characters, hyphens, and underscores")
		}
	}

	return nil
}

// IsStacksAddress checks whether a string has the shape of a Stacks
// address: an S prefix, a network version character, then c32 payload.
func IsStacksAddress(addr string) bool {
	if len(addr) < 38 || len(addr) > 42 {
		return false
	}

	if addr[0] != 'S' {
		return false
	}

	switch addr[1] {
	case 'P', 'M', 'T', 'N':
	default:
		return false
	}

	for _, c := range addr[2:] {
		if !isC32(byte(c)) {
			return false
		}
	}

	return true
}

func isC32(c byte) bool {
	for i := 0; i < len(c32Alphabet); i++ {
		if c32Alphabet[i] == c {
			return true
		}
	}
	return false
}
