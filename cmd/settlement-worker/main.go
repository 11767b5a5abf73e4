package main

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/TheSoftNode/StacksPay-sub004/internal/config"
	"github.com/TheSoftNode/StacksPay-sub004/internal/contract"
	"github.com/TheSoftNode/StacksPay-sub004/internal/lifecycle"
	"github.com/TheSoftNode/StacksPay-sub004/internal/logger"
	"github.com/TheSoftNode/StacksPay-sub004/internal/models"
	"github.com/TheSoftNode/StacksPay-sub004/internal/notify"
	"github.com/TheSoftNode/StacksPay-sub004/internal/queue"
	"github.com/TheSoftNode/StacksPay-sub004/internal/store"
	"github.com/TheSoftNode/StacksPay-sub004/internal/wallet"
)

// Handler manages the settlement worker dependencies
type Handler struct {
	machine     *lifecycle.Machine
	settlements *queue.SettlementQueue
	cfg         *config.Config
}

// NewHandler creates a new settlement worker handler
func NewHandler(cfg *config.Config) (*Handler, error) {
	ctx := context.Background()

	payments, err := store.NewDynamoStore(cfg.AWS.Region, cfg.Database.PaymentsTable, cfg.Database.Endpoint)
	if err != nil {
		return nil, err
	}

	merchants, err := store.NewDynamoMerchantStore(cfg.AWS.Region, cfg.Database.MerchantsTable, cfg.Database.Endpoint)
	if err != nil {
		return nil, err
	}

	q, err := queue.NewClient(cfg.AWS.Region, cfg.Queue.Endpoint)
	if err != nil {
		return nil, err
	}
	settlements := queue.NewSettlementQueue(q, cfg.Queue.SettlementQueueURL)

	masterKey, err := config.GetWalletMasterKey(ctx, cfg.AWS.Region)
	if err != nil {
		return nil, err
	}
	vault, err := wallet.NewVault(masterKey, cfg.Chain.Network)
	if err != nil {
		return nil, err
	}

	// In production, replace with a signing client for the gateway contract
	chain := contract.NewFake()

	machine := lifecycle.NewMachine(lifecycle.Deps{
		Payments:        payments,
		Merchants:       merchants,
		Contract:        chain,
		Notifier:        notify.NewQueueNotifier(queue.NewWebhookQueue(q, cfg.Queue.WebhookQueueURL)),
		Vault:           vault,
		Settlements:     settlements,
		SettlementDelay: time.Duration(cfg.Payments.SettlementDelaySeconds) * time.Second,
		DefaultExpiry:   time.Duration(cfg.Payments.ExpirySeconds) * time.Second,
	})

	return &Handler{
		machine:     machine,
		settlements: settlements,
		cfg:         cfg,
	}, nil
}

// HandleRequest processes SQS messages containing settlement jobs
func (h *Handler) HandleRequest(ctx context.Context, sqsEvent events.SQSEvent) error {
	logger.Info("Received SQS event", logger.Fields{
		"record_count": len(sqsEvent.Records),
	})

	for _, record := range sqsEvent.Records {
		if err := h.processRecord(ctx, record); err != nil {
			logger.Error("Failed to process settlement record", logger.Fields{
				"error":      err.Error(),
				"message_id": record.MessageId,
			})
			// Return error to retry the message
			// Note: In production, you might want more sophisticated retry logic
			return err
		}
	}

	return nil
}

// processRecord processes a single settlement job
func (h *Handler) processRecord(ctx context.Context, record events.SQSMessage) error {
	var job models.SettlementJob
	if err := json.Unmarshal([]byte(record.Body), &job); err != nil {
		logger.Error("Failed to unmarshal settlement job", logger.Fields{
			"error": err.Error(),
		})
		return err
	}

	logger.Info("Processing settlement job", logger.Fields{
		"payment_id": job.PaymentID,
		"attempt":    job.Attempt,
	})

	err := h.machine.Settle(ctx, job.PaymentID)
	if err == nil {
		return nil
	}

	// Not due yet: the SQS delay ceiling is shorter than the settlement
	// delay, so the job bounces until settle_after has truly elapsed.
	var notDue *lifecycle.NotDueError
	if errors.As(err, &notDue) {
		remaining := int(time.Until(notDue.Due).Seconds()) + 1
		if remaining < 0 {
			remaining = 0
		}

		logger.Info("Settlement not due, re-enqueueing", logger.Fields{
			"payment_id":        job.PaymentID,
			"due":               notDue.Due.Format(time.RFC3339),
			"remaining_seconds": remaining,
			"attempt":           job.Attempt,
		})

		next := &models.SettlementJob{PaymentID: job.PaymentID, Attempt: job.Attempt + 1}
		return h.settlements.EnqueueSettlement(ctx, next, remaining)
	}

	return err
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
