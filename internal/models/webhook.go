package models

import "time"

// WebhookEventType identifies a payment lifecycle event
type WebhookEventType string

const (
	EventPaymentCreated   WebhookEventType = "payment.created"
	EventPaymentConfirmed WebhookEventType = "payment.confirmed"
	EventPaymentSettled   WebhookEventType = "payment.settled"
	EventPaymentExpired   WebhookEventType = "payment.expired"
	EventPaymentCancelled WebhookEventType = "payment.cancelled"
	EventPaymentFailed    WebhookEventType = "payment.failed"
)

// WebhookEvent is the envelope delivered to merchant webhook endpoints.
// The payment snapshot inside Data already excludes key material via its
// JSON tags.
type WebhookEvent struct {
	ID        string           `json:"id"`
	Type      WebhookEventType `json:"type"`
	CreatedAt time.Time        `json:"created_at"`
	Data      WebhookEventData `json:"data"`
}

// WebhookEventData wraps the payment snapshot carried by an event
type WebhookEventData struct {
	Payment Payment `json:"payment"`
}
