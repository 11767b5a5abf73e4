package queue

import (
	"context"

	"github.com/TheSoftNode/StacksPay-sub004/internal/models"
)

// SettlementQueue wraps the SQS client with the settlement queue URL
type SettlementQueue struct {
	client   *Client
	queueURL string
}

// NewSettlementQueue creates a settlement queue bound to its URL
func NewSettlementQueue(client *Client, queueURL string) *SettlementQueue {
	return &SettlementQueue{
		client:   client,
		queueURL: queueURL,
	}
}

// EnqueueSettlement sends a settlement job with delayed visibility
func (q *SettlementQueue) EnqueueSettlement(ctx context.Context, job *models.SettlementJob, delaySeconds int) error {
	return q.client.SendSettlementJobWithDelay(ctx, q.queueURL, job, delaySeconds)
}

// WebhookQueue wraps the SQS client with the webhook queue URL
type WebhookQueue struct {
	client   *Client
	queueURL string
}

// NewWebhookQueue creates a webhook queue bound to its URL
func NewWebhookQueue(client *Client, queueURL string) *WebhookQueue {
	return &WebhookQueue{
		client:   client,
		queueURL: queueURL,
	}
}

// EnqueueEvent sends a webhook event for dispatch
func (q *WebhookQueue) EnqueueEvent(ctx context.Context, event *models.WebhookEvent) error {
	return q.client.SendWebhookEvent(ctx, q.queueURL, event)
}
