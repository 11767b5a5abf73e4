package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/TheSoftNode/StacksPay-sub004/internal/config"
	"github.com/TheSoftNode/StacksPay-sub004/internal/contract"
	apperrors "github.com/TheSoftNode/StacksPay-sub004/internal/errors"
	"github.com/TheSoftNode/StacksPay-sub004/internal/lifecycle"
	"github.com/TheSoftNode/StacksPay-sub004/internal/logger"
	"github.com/TheSoftNode/StacksPay-sub004/internal/models"
	"github.com/TheSoftNode/StacksPay-sub004/internal/notify"
	"github.com/TheSoftNode/StacksPay-sub004/internal/queue"
	"github.com/TheSoftNode/StacksPay-sub004/internal/store"
	"github.com/TheSoftNode/StacksPay-sub004/internal/validator"
	"github.com/TheSoftNode/StacksPay-sub004/internal/wallet"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Handler manages the API Lambda dependencies
type Handler struct {
	payments *store.DynamoStore
	machine  *lifecycle.Machine
	cfg      *config.Config
}

// NewHandler creates a new API handler
func NewHandler(cfg *config.Config) (*Handler, error) {
	ctx := context.Background()

	// Initialize payment store
	payments, err := store.NewDynamoStore(cfg.AWS.Region, cfg.Database.PaymentsTable, cfg.Database.Endpoint)
	if err != nil {
		return nil, err
	}

	// Initialize merchant store
	merchants, err := store.NewDynamoMerchantStore(cfg.AWS.Region, cfg.Database.MerchantsTable, cfg.Database.Endpoint)
	if err != nil {
		return nil, err
	}

	// Initialize queue client
	q, err := queue.NewClient(cfg.AWS.Region, cfg.Queue.Endpoint)
	if err != nil {
		return nil, err
	}

	// Initialize wallet vault from the master key secret
	masterKey, err := config.GetWalletMasterKey(ctx, cfg.AWS.Region)
	if err != nil {
		return nil, err
	}
	vault, err := wallet.NewVault(masterKey, cfg.Chain.Network)
	if err != nil {
		return nil, err
	}

	// Initialize contract facade
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

	return &Handler{
		payments: payments,
		machine:  machine,
		cfg:      cfg,
	}, nil
}

// HandleRequest handles the API Gateway request
func (h *Handler) HandleRequest(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger.Info("Received API request", logger.Fields{
		"path":   request.Path,
		"method": request.HTTPMethod,
	})

	// Route to appropriate handler
	if request.HTTPMethod == http.MethodPost && request.Path == "/payments" {
		return h.handleCreatePayment(ctx, request)
	}

	if request.HTTPMethod == http.MethodGet && request.Path == "/payments" {
		return h.handleListPayments(ctx, request)
	}

	if paymentID, ok := request.PathParameters["payment_id"]; ok {
		if request.HTTPMethod == http.MethodPost && strings.HasSuffix(request.Path, "/cancel") {
			return h.handleCancelPayment(ctx, paymentID, request)
		}
		if request.HTTPMethod == http.MethodGet {
			return h.handleGetPayment(ctx, paymentID)
		}
	}

	return errorResponse(http.StatusNotFound, "NOT_FOUND", "Endpoint not found")
}

// handleCreatePayment handles POST /payments
func (h *Handler) handleCreatePayment(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {

	// Extract idempotency key from headers
	idempotencyKey := request.Headers["Idempotency-Key"]
	if idempotencyKey == "" {
		// Try lowercase header name (API Gateway can normalize headers)
		idempotencyKey = request.Headers["idempotency-key"]
	}

	if err := validator.ValidateIdempotencyKey(idempotencyKey); err != nil {
		return appErrorResponse(err)
	}

	// Check if a payment with this idempotency key already exists
	existing, err := h.payments.GetPaymentByIdempotencyKey(ctx, idempotencyKey)
	if err != nil {
		logger.Error("Failed to check idempotency key", logger.Fields{
			"error":           err.Error(),
			"idempotency_key": idempotencyKey,
		})
		return errorResponse(http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to process request")
	}

	if existing != nil {
		logger.Warn("Duplicate idempotency key", logger.Fields{
			"idempotency_key": idempotencyKey,
			"payment_id":      existing.PaymentID,
		})
		return errorResponse(http.StatusConflict, "DUPLICATE_REQUEST",
			"A payment with this idempotency key already exists")
	}

	// Parse request body
	var req models.CreatePaymentRequest
	if err := json.Unmarshal([]byte(request.Body), &req); err != nil {
		logger.Error("Failed to parse request body", logger.Fields{"error": err.Error()})
		return errorResponse(http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
	}

	if err := validator.ValidateCreatePaymentRequest(&req); err != nil {
		logger.Warn("Validation failed", logger.Fields{"error": err.Error()})
		return appErrorResponse(err)
	}

	payment, err := h.machine.Create(ctx, &req, idempotencyKey)
	if err != nil {
		logger.Error("Failed to create payment", logger.Fields{
			"error":       err.Error(),
			"merchant_id": req.MerchantID,
		})
		return appErrorResponse(err)
	}

	responseBody, _ := json.Marshal(payment)

	logger.Info("Payment accepted", logger.Fields{
		"payment_id":      payment.PaymentID,
		"merchant_id":     payment.MerchantID,
		"expected_amount": payment.ExpectedAmount,
	})

	return jsonResponse(http.StatusCreated, responseBody), nil
}

// handleGetPayment handles GET /payments/{payment_id}
func (h *Handler) handleGetPayment(ctx context.Context, paymentID string) (events.APIGatewayProxyResponse, error) {
	payment, err := h.payments.GetPaymentByID(ctx, paymentID)
	if err != nil {
		logger.Warn("Failed to fetch payment", logger.Fields{
			"error":      err.Error(),
			"payment_id": paymentID,
		})
		return appErrorResponse(err)
	}

	responseBody, _ := json.Marshal(payment)
	return jsonResponse(http.StatusOK, responseBody), nil
}

// handleListPayments handles GET /payments?merchant_id=...&limit=...&cursor=...
func (h *Handler) handleListPayments(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	merchantID := request.QueryStringParameters["merchant_id"]
	if merchantID == "" {
		return errorResponse(http.StatusBadRequest, "VALIDATION_ERROR", "merchant_id query parameter is required")
	}

	limit := defaultPageSize
	if raw := request.QueryStringParameters["limit"]; raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return errorResponse(http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a positive integer")
		}
		if parsed > maxPageSize {
			parsed = maxPageSize
		}
		limit = parsed
	}

	page, err := h.payments.ListPaymentsByMerchant(ctx, merchantID, limit, request.QueryStringParameters["cursor"])
	if err != nil {
		logger.Error("Failed to list payments", logger.Fields{
			"error":       err.Error(),
			"merchant_id": merchantID,
		})
		return appErrorResponse(err)
	}

	responseBody, _ := json.Marshal(page)
	return jsonResponse(http.StatusOK, responseBody), nil
}

// handleCancelPayment handles POST /payments/{payment_id}/cancel
func (h *Handler) handleCancelPayment(ctx context.Context, paymentID string, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var req models.CancelPaymentRequest
	if err := json.Unmarshal([]byte(request.Body), &req); err != nil {
		logger.Error("Failed to parse cancel request body", logger.Fields{"error": err.Error()})
		return errorResponse(http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
	}

	if err := validator.ValidateCancelPaymentRequest(paymentID, &req); err != nil {
		return appErrorResponse(err)
	}

	payment, err := h.machine.Cancel(ctx, paymentID, req.MerchantID)
	if err != nil {
		logger.Warn("Cancel rejected", logger.Fields{
			"error":      err.Error(),
			"payment_id": paymentID,
		})
		return appErrorResponse(err)
	}

	responseBody, _ := json.Marshal(payment)

	logger.Info("Payment cancelled via API", logger.Fields{
		"payment_id":  paymentID,
		"merchant_id": req.MerchantID,
	})

	return jsonResponse(http.StatusOK, responseBody), nil
}

// jsonResponse creates a JSON API Gateway response
func jsonResponse(statusCode int, body []byte) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: statusCode,
		Headers: map[string]string{
			"Content-Type":                 "application/json",
			"Access-Control-Allow-Origin":  "*",
			"Access-Control-Allow-Methods": "GET,POST,OPTIONS",
			"Access-Control-Allow-Headers": "Content-Type,X-Amz-Date,Authorization,X-Api-Key,X-Amz-Security-Token,Idempotency-Key",
		},
		Body: string(body),
	}
}

// appErrorResponse maps an application error onto an HTTP response
func appErrorResponse(err error) (events.APIGatewayProxyResponse, error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return errorResponse(appErr.StatusCode, appErr.Code, appErr.Message)
	}
	return errorResponse(http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
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
	return jsonResponse(statusCode, body), nil
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", logger.Fields{"error": err.Error()})
		panic(err)
	}

	// Initialize logger
	log := logger.NewFromString(cfg.Logging.Level)
	logger.SetDefault(log)

	// Create handler
	handler, err := NewHandler(cfg)
	if err != nil {
		logger.Error("Failed to create handler", logger.Fields{"error": err.Error()})
		panic(err)
	}

	// Start Lambda
	lambda.Start(handler.HandleRequest)
}
