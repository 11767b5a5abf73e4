package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/TheSoftNode/StacksPay-sub004/internal/config"
	"github.com/TheSoftNode/StacksPay-sub004/internal/logger"
	"github.com/TheSoftNode/StacksPay-sub004/internal/models"
	"github.com/TheSoftNode/StacksPay-sub004/internal/notify"
	"github.com/TheSoftNode/StacksPay-sub004/internal/store"
)

// Handler manages the webhook dispatcher dependencies
type Handler struct {
	merchants *store.DynamoMerchantStore
	deliverer *notify.Deliverer
	cfg       *config.Config
}

// NewHandler creates a new webhook dispatcher handler
func NewHandler(cfg *config.Config) (*Handler, error) {
	merchants, err := store.NewDynamoMerchantStore(cfg.AWS.Region, cfg.Database.MerchantsTable, cfg.Database.Endpoint)
	if err != nil {
		return nil, err
	}

	return &Handler{
		merchants: merchants,
		deliverer: notify.NewDeliverer(10 * time.Second),
		cfg:       cfg,
	}, nil
}

// HandleRequest processes SQS messages containing webhook events
func (h *Handler) HandleRequest(ctx context.Context, sqsEvent events.SQSEvent) error {
	logger.Info("Received webhook event", logger.Fields{
		"record_count": len(sqsEvent.Records),
	})

	for _, record := range sqsEvent.Records {
		if err := h.processRecord(ctx, record); err != nil {
			logger.Error("Failed to process webhook record", logger.Fields{
				"error":      err.Error(),
				"message_id": record.MessageId,
			})
			// Continue processing other records even if one fails
			// In production, you might want to send failed webhooks to a DLQ
			continue
		}
	}

	return nil
}

// processRecord delivers a single webhook event to its merchant
func (h *Handler) processRecord(ctx context.Context, record events.SQSMessage) error {
	var event models.WebhookEvent
	if err := json.Unmarshal([]byte(record.Body), &event); err != nil {
		logger.Error("Failed to unmarshal webhook event", logger.Fields{
			"error": err.Error(),
		})
		return err
	}

	payment := event.Data.Payment
	logger.Info("Processing webhook event", logger.Fields{
		"event_id":   event.ID,
		"type":       string(event.Type),
		"payment_id": payment.PaymentID,
	})

	merchant, err := h.merchants.GetMerchant(ctx, payment.MerchantID)
	if err != nil {
		return err
	}

	if merchant.WebhookURL == "" {
		logger.Info("Merchant has no webhook URL, skipping delivery", logger.Fields{
			"event_id":    event.ID,
			"merchant_id": merchant.MerchantID,
		})
		return nil
	}

	if err := h.deliverer.Deliver(ctx, &event, merchant.WebhookURL, merchant.WebhookSecret); err != nil {
		return err
	}

	logger.Info("Webhook delivered", logger.Fields{
		"event_id":    event.ID,
		"type":        string(event.Type),
		"payment_id":  payment.PaymentID,
		"merchant_id": merchant.MerchantID,
	})

	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", logger.Fields{"error": err.Error()})
		panic(err)
	}

	log := logger.NewFromString(cfg.Logging.Level)
	logger.SetDefault(log)

	handler, err := NewHandler(cfg)
	if err != nil {
		logger.Error("Failed to create handler", logger.Fields{"error": err.Error()})
		panic(err)
	}

	lambda.Start(handler.HandleRequest)
}
