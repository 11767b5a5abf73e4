package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TheSoftNode/StacksPay-sub004/internal/models"
	"github.com/TheSoftNode/StacksPay-sub004/internal/queue"
)

// Notifier delivers payment lifecycle events toward merchant webhooks.
// Callers treat delivery as fire-and-forget: errors are logged and never
// roll back payment state.
type Notifier interface {
	Notify(ctx context.Context, eventType models.WebhookEventType, payment *models.Payment) error
}

// NewEvent builds a webhook event envelope around a payment snapshot
func NewEvent(eventType models.WebhookEventType, payment *models.Payment) *models.WebhookEvent {
	return &models.WebhookEvent{
		ID:        "evt_" + uuid.New().String(),
		Type:      eventType,
		CreatedAt: time.Now().UTC(),
		Data:      models.WebhookEventData{Payment: *payment},
	}
}

// QueueNotifier enqueues events for the webhook dispatcher
type QueueNotifier struct {
	queue *queue.WebhookQueue
}

// NewQueueNotifier creates a notifier backed by the webhook queue
func NewQueueNotifier(q *queue.WebhookQueue) *QueueNotifier {
	return &QueueNotifier{queue: q}
}

// Notify enqueues one event
func (n *QueueNotifier) Notify(ctx context.Context, eventType models.WebhookEventType, payment *models.Payment) error {
	return n.queue.EnqueueEvent(ctx, NewEvent(eventType, payment))
}

// MerchantSource resolves the webhook target for a merchant
type MerchantSource interface {
	GetMerchant(ctx context.Context, merchantID string) (*models.Merchant, error)
}

// DirectNotifier delivers events synchronously. It backs the standalone
// server, where no queue sits between the lifecycle and the merchant.
type DirectNotifier struct {
	merchants MerchantSource
	deliverer *Deliverer
}

// NewDirectNotifier creates a notifier that posts events inline
func NewDirectNotifier(merchants MerchantSource, deliverer *Deliverer) *DirectNotifier {
	return &DirectNotifier{merchants: merchants, deliverer: deliverer}
}

// Notify resolves the merchant and posts the signed event. Merchants
// without a webhook URL are skipped.
func (n *DirectNotifier) Notify(ctx context.Context, eventType models.WebhookEventType, payment *models.Payment) error {
	merchant, err := n.merchants.GetMerchant(ctx, payment.MerchantID)
	if err != nil {
		return err
	}

	if merchant.WebhookURL == "" {
		return nil
	}

	return n.deliverer.Deliver(ctx, NewEvent(eventType, payment), merchant.WebhookURL, merchant.WebhookSecret)
}

// Capture is a Notifier that records events in memory for tests
type Capture struct {
	mu     sync.Mutex
	events []models.WebhookEvent
	fail   error
}

// NewCapture creates an empty capture notifier
func NewCapture() *Capture {
	return &Capture{}
}

// FailWith makes every subsequent Notify return err
func (c *Capture) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = err
}

// Notify records the event
func (c *Capture) Notify(ctx context.Context, eventType models.WebhookEventType, payment *models.Payment) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.events = append(c.events, *NewEvent(eventType, payment))
	return nil
}

// Events returns a copy of everything recorded so far
func (c *Capture) Events() []models.WebhookEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.WebhookEvent, len(c.events))
	copy(out, c.events)
	return out
}

// EventTypes returns just the recorded event types, in order
func (c *Capture) EventTypes() []models.WebhookEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.WebhookEventType, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Type)
	}
	return out
}
