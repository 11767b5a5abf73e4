package models

import "time"

// Merchant represents a merchant account. The gateway reads merchants to
// snapshot fee rates at creation and to resolve settlement and webhook
// targets; it never mutates them. WebhookSecret signs outbound events and
// is excluded from JSON.
type Merchant struct {
	MerchantID        string    `json:"merchant_id" dynamodbav:"merchant_id"`
	Name              string    `json:"name" dynamodbav:"name"`
	SettlementAddress string    `json:"settlement_address" dynamodbav:"settlement_address"`
	WebhookURL        string    `json:"webhook_url,omitempty" dynamodbav:"webhook_url,omitempty"`
	WebhookSecret     string    `json:"-" dynamodbav:"webhook_secret,omitempty"`
	FeeRatePercent    int64     `json:"fee_rate_percent" dynamodbav:"fee_rate_percent"`
	CreatedAt         time.Time `json:"created_at" dynamodbav:"created_at"`
}
