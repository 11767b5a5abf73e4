package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TheSoftNode/StacksPay-sub004/internal/models"
)

func TestValidateCreatePaymentRequest(t *testing.T) {
	tests := []struct {
		name    string
		request *models.CreatePaymentRequest
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid request",
			request: &models.CreatePaymentRequest{
				MerchantID: "merch_123",
				BaseAmount: 1_000_000,
			},
			wantErr: false,
		},
		{
			name: "valid request with all fields",
			request: &models.CreatePaymentRequest{
				MerchantID:       "merch_123",
				BaseAmount:       1_000_000,
				FeeRatePercent:   3,
				Description:      "two night stay",
				Metadata:         map[string]string{"order": "ord_99"},
				ExpiresInMinutes: 30,
			},
			wantErr: false,
		},
		{
			name: "zero fee rate allowed",
			request: &models.CreatePaymentRequest{
				MerchantID:     "merch_123",
				BaseAmount:     1_000_000,
				FeeRatePercent: 0,
			},
			wantErr: false,
		},
		{
			name: "empty merchant id",
			request: &models.CreatePaymentRequest{
				MerchantID: "",
				BaseAmount: 1_000_000,
			},
			wantErr: true,
			errMsg:  "merchant_id",
		},
		{
			name: "merchant id too short",
			request: &models.CreatePaymentRequest{
				MerchantID: "ab",
				BaseAmount: 1_000_000,
			},
			wantErr: true,
			errMsg:  "merchant_id",
		},
		{
			name: "zero amount",
			request: &models.CreatePaymentRequest{
				MerchantID: "merch_123",
				BaseAmount: 0,
			},
			wantErr: true,
			errMsg:  "base_amount",
		},
		{
			name: "negative amount",
			request: &models.CreatePaymentRequest{
				MerchantID: "merch_123",
				BaseAmount: -1_000,
			},
			wantErr: true,
			errMsg:  "base_amount",
		},
		{
			name: "amount too large",
			request: &models.CreatePaymentRequest{
				MerchantID: "merch_123",
				BaseAmount: 1_000_000_000_001,
			},
			wantErr: true,
			errMsg:  "base_amount",
		},
		{
			name: "negative fee rate",
			request: &models.CreatePaymentRequest{
				MerchantID:     "merch_123",
				BaseAmount:     1_000_000,
				FeeRatePercent: -1,
			},
			wantErr: true,
			errMsg:  "fee_rate_percent",
		},
		{
			name: "fee rate above 100",
			request: &models.CreatePaymentRequest{
				MerchantID:     "merch_123",
				BaseAmount:     1_000_000,
				FeeRatePercent: 101,
			},
			wantErr: true,
			errMsg:  "fee_rate_percent",
		},
		{
			name: "negative expiry",
			request: &models.CreatePaymentRequest{
				MerchantID:       "merch_123",
				BaseAmount:       1_000_000,
				ExpiresInMinutes: -5,
			},
			wantErr: true,
			errMsg:  "expires_in_minutes",
		},
		{
			name: "expiry beyond one week",
			request: &models.CreatePaymentRequest{
				MerchantID:       "merch_123",
				BaseAmount:       1_000_000,
				ExpiresInMinutes: 7*24*60 + 1,
			},
			wantErr: true,
			errMsg:  "expires_in_minutes",
		},
		{
			name: "description too long",
			request: &models.CreatePaymentRequest{
				MerchantID:  "merch_123",
				BaseAmount:  1_000_000,
				Description: strings.Repeat("x", 501),
			},
			wantErr: true,
			errMsg:  "description",
		},
		{
			name: "too many metadata entries",
			request: &models.CreatePaymentRequest{
				MerchantID: "merch_123",
				BaseAmount: 1_000_000,
				Metadata:   manyMetadataEntries(21),
			},
			wantErr: true,
			errMsg:  "metadata",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCreatePaymentRequest(tt.request)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateCancelPaymentRequest(t *testing.T) {
	tests := []struct {
		name      string
		paymentID string
		request   *models.CancelPaymentRequest
		wantErr   bool
		errMsg    string
	}{
		{
			name:      "valid request",
			paymentID: "pay_123",
			request:   &models.CancelPaymentRequest{MerchantID: "merch_123"},
			wantErr:   false,
		},
		{
			name:      "empty payment id",
			paymentID: "",
			request:   &models.CancelPaymentRequest{MerchantID: "merch_123"},
			wantErr:   true,
			errMsg:    "payment_id",
		},
		{
			name:      "empty merchant id",
			paymentID: "pay_123",
			request:   &models.CancelPaymentRequest{},
			wantErr:   true,
			errMsg:    "merchant_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCancelPaymentRequest(tt.paymentID, tt.request)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateIdempotencyKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{
			name:    "valid UUID",
			key:     "550e8400-e29b-41d4-a716-446655440000",
			wantErr: false,
		},
		{
			name:    "valid alphanumeric with hyphens",
			key:     "payment-abc123-xyz789",
			wantErr: false,
		},
		{
			name:    "valid with underscores",
			key:     "payment_abc123_xyz789",
			wantErr: false,
		},
		{
			name:    "empty key",
			key:     "",
			wantErr: true,
		},
		{
			name:    "too short",
			key:     "abc123",
			wantErr: true,
		},
		{
			name:    "too long",
			key:     strings.Repeat("a", 256),
			wantErr: true,
		},
		{
			name:    "contains special characters",
			key:     "payment@abc123",
			wantErr: true,
		},
		{
			name:    "contains spaces",
			key:     "payment abc123",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdempotencyKey(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsStacksAddress(t *testing.T) {
	tests := []struct {
		name string
		addr string
		want bool
	}{
		{"mainnet single sig", "SP1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM", true},
		{"testnet single sig", "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM", true},
		{"mainnet multisig", "SM2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKQVX8X0G", true},
		{"testnet multisig", "SN2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKQVX8X0G", true},
		{"empty", "", false},
		{"too short", "SP123", false},
		{"too long", "SP1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGMXXX", false},
		{"wrong prefix", "XP1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM", false},
		{"bad version character", "SX1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM", false},
		{"lowercase payload", "sp1pqhqkv0rjxzfy1dgx8mnsnyve3vgzjsrtpgzgm", false},
		{"excluded c32 letter", "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGO", false},
		{"contract identifier", "SP1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM.gw", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsStacksAddress(tt.addr))
		})
	}
}

func manyMetadataEntries(n int) map[string]string {
	out := make(map[string]string, n)
	for i := 0; i < n; i++ {
		out[strings.Repeat("k", i+1)] = "v"
	}
	return out
}
