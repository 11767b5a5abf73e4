package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/TheSoftNode/StacksPay-sub004/internal/logger"
	"github.com/TheSoftNode/StacksPay-sub004/internal/models"
)

// Deliverer signs webhook payloads and POSTs them to merchant endpoints.
// No retries here: redelivery policy belongs to the queue.
type Deliverer struct {
	client *http.Client
}

// NewDeliverer creates a deliverer with the given request timeout
func NewDeliverer(timeout time.Duration) *Deliverer {
	return &Deliverer{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Deliver sends one signed event to a merchant webhook URL
func (d *Deliverer) Deliver(ctx context.Context, event *models.WebhookEvent, webhookURL, secret string) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", Sign(payload, secret))
	req.Header.Set("X-Event-ID", event.ID)
	req.Header.Set("X-Event-Type", string(event.Type))

	logger.Info("Sending webhook", logger.Fields{
		"url":        webhookURL,
		"event_id":   event.ID,
		"event_type": string(event.Type),
	})

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook request failed with status: %d", resp.StatusCode)
	}

	return nil
}
