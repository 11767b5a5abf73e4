package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/TheSoftNode/StacksPay-sub004/internal/config"
	"github.com/TheSoftNode/StacksPay-sub004/internal/contract"
	apperrors "github.com/TheSoftNode/StacksPay-sub004/internal/errors"
	"github.com/TheSoftNode/StacksPay-sub004/internal/ingest"
	"github.com/TheSoftNode/StacksPay-sub004/internal/lifecycle"
	"github.com/TheSoftNode/StacksPay-sub004/internal/logger"
	"github.com/TheSoftNode/StacksPay-sub004/internal/models"
	"github.com/TheSoftNode/StacksPay-sub004/internal/notify"
	"github.com/TheSoftNode/StacksPay-sub004/internal/queue"
	"github.com/TheSoftNode/StacksPay-sub004/internal/store"
	"github.com/TheSoftNode/StacksPay-sub004/internal/wallet"
)

// Handler manages the chainhook Lambda dependencies
type Handler struct {
	processor *ingest.Processor
	cfg       *config.Config
}

// NewHandler creates a new chainhook handler
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
		Settlements:     queue.NewSettlementQueue(q, cfg.Queue.SettlementQueueURL),
		SettlementDelay: time.Duration(cfg.Payments.SettlementDelaySeconds) * time.Second,
		DefaultExpiry:   time.Duration(cfg.Payments.ExpirySeconds) * time.Second,
	})

	contractID := cfg.Chain.ContractAddress + "." + cfg.Chain.ContractName
	processor := ingest.NewProcessor(payments, machine, contractID)

	return &Handler{
		processor: processor,
		cfg:       cfg,
	}, nil
}

// HandleRequest handles an inbound chainhook delivery
func (h *Handler) HandleRequest(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if !h.authorized(request) {
		logger.Warn("Rejected chainhook delivery with bad token", nil)
		return errorResponse(http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing bearer token")
	}

	var batch models.ChainhookBatch
	if err := json.Unmarshal([]byte(request.Body), &batch); err != nil {
		logger.Error("Failed to parse chainhook batch", logger.Fields{"error": err.Error()})
		return errorResponse(http.StatusBadRequest, "INVALID_JSON", "Invalid batch body")
	}

	result := h.processor.ProcessBatch(ctx, &batch)

	// The batch is acknowledged even when individual operations failed;
	// per-operation errors ride in the response body.
	responseBody, _ := json.Marshal(result)
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(responseBody),
	}, nil
}

// authorized checks the shared bearer token on the delivery
func (h *Handler) authorized(request events.APIGatewayProxyRequest) bool {
	if h.cfg.Chain.ChainhookToken == "" {
		// No token configured: accept (local development)
		return true
	}

	auth := request.Headers["Authorization"]
	if auth == "" {
		auth = request.Headers["authorization"]
	}

	token := strings.TrimPrefix(auth, "Bearer ")
	return token != "" && token == h.cfg.Chain.ChainhookToken
}

// errorResponse creates an error response
func errorResponse(statusCode int, code, message string) (events.APIGatewayProxyResponse, error) {
	errResp := apperrors.ErrorResponse{
		Error: apperrors.ErrorDetail{
			Code:    code,
			Message: message,
		},
	}

	body, _ := json.Marshal(errResp)
	return events.APIGatewayProxyResponse{
		StatusCode: statusCode,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}, nil
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
