package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/TheSoftNode/StacksPay-sub004/internal/config"
	"github.com/TheSoftNode/StacksPay-sub004/internal/contract"
	apperrors "github.com/TheSoftNode/StacksPay-sub004/internal/errors"
	"github.com/TheSoftNode/StacksPay-sub004/internal/ingest"
	"github.com/TheSoftNode/StacksPay-sub004/internal/lifecycle"
	"github.com/TheSoftNode/StacksPay-sub004/internal/logger"
	"github.com/TheSoftNode/StacksPay-sub004/internal/models"
	"github.com/TheSoftNode/StacksPay-sub004/internal/notify"
	"github.com/TheSoftNode/StacksPay-sub004/internal/store"
	"github.com/TheSoftNode/StacksPay-sub004/internal/validator"
	"github.com/TheSoftNode/StacksPay-sub004/internal/wallet"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	sweepBatchSize  = 50
)

// Server hosts the gateway over plain HTTP with in-memory state. It exists
// for local development: the same lifecycle, fee math, and validation as
// the Lambda deployment, with no AWS dependencies. Settlement is driven by
// a ticker sweep instead of a delayed queue.
type Server struct {
	store     *store.MemoryStore
	machine   *lifecycle.Machine
	processor *ingest.Processor
	cfg       *config.Config
}

// NewServer creates a standalone gateway server
func NewServer(cfg *config.Config) (*Server, error) {
	ctx := context.Background()

	mem := store.NewMemoryStore()

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
		Payments:        mem,
		Merchants:       mem,
		Contract:        chain,
		Notifier:        notify.NewDirectNotifier(mem, notify.NewDeliverer(10*time.Second)),
		Vault:           vault,
		SettlementDelay: time.Duration(cfg.Payments.SettlementDelaySeconds) * time.Second,
		DefaultExpiry:   time.Duration(cfg.Payments.ExpirySeconds) * time.Second,
	})

	contractID := cfg.Chain.ContractAddress + "." + cfg.Chain.ContractName

	return &Server{
		store:     mem,
		machine:   machine,
		processor: ingest.NewProcessor(mem, machine, contractID),
		cfg:       cfg,
	}, nil
}

// routes builds the HTTP route table. Paths mirror the Lambda handlers so
// client code moves between the two deployments unchanged.
func (s *Server) routes() *gin.Engine {
	router := gin.Default()

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	router.GET("/health", s.health)

	router.POST("/payments", s.createPayment)
	router.GET("/payments", s.listPayments)
	router.GET("/payments/:payment_id", s.getPayment)
	router.POST("/payments/:payment_id/cancel", s.cancelPayment)

	router.POST("/chainhook", s.ingestChainhook)

	router.PUT("/merchants/:merchant_id", s.putMerchant)

	return router
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "stackspay-gateway",
	})
}

// createPayment handles POST /payments
func (s *Server) createPayment(c *gin.Context) {
	idempotencyKey := c.GetHeader("Idempotency-Key")
	if err := validator.ValidateIdempotencyKey(idempotencyKey); err != nil {
		abortWithAppError(c, err)
		return
	}

	existing, err := s.store.GetPaymentByIdempotencyKey(c.Request.Context(), idempotencyKey)
	if err != nil {
		logger.Error("Failed to check idempotency key", logger.Fields{
			"error":           err.Error(),
			"idempotency_key": idempotencyKey,
		})
		c.JSON(http.StatusInternalServerError, errorBody("INTERNAL_ERROR", "Failed to process request"))
		return
	}

	if existing != nil {
		logger.Warn("Duplicate idempotency key", logger.Fields{
			"idempotency_key": idempotencyKey,
			"payment_id":      existing.PaymentID,
		})
		c.JSON(http.StatusConflict, errorBody("DUPLICATE_REQUEST", "A payment with this idempotency key already exists"))
		return
	}

	var req models.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_JSON", "Invalid request body"))
		return
	}

	if err := validator.ValidateCreatePaymentRequest(&req); err != nil {
		abortWithAppError(c, err)
		return
	}

	payment, err := s.machine.Create(c.Request.Context(), &req, idempotencyKey)
	if err != nil {
		abortWithAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, payment)
}

// getPayment handles GET /payments/:payment_id
func (s *Server) getPayment(c *gin.Context) {
	payment, err := s.store.GetPaymentByID(c.Request.Context(), c.Param("payment_id"))
	if err != nil {
		abortWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, payment)
}

// listPayments handles GET /payments?merchant_id=...&limit=...&cursor=...
func (s *Server) listPayments(c *gin.Context) {
	merchantID := c.Query("merchant_id")
	if merchantID == "" {
		c.JSON(http.StatusBadRequest, errorBody("VALIDATION_ERROR", "merchant_id query parameter is required"))
		return
	}

	limit := defaultPageSize
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, errorBody("VALIDATION_ERROR", "limit must be a positive integer"))
			return
		}
		if parsed > maxPageSize {
			parsed = maxPageSize
		}
		limit = parsed
	}

	page, err := s.store.ListPaymentsByMerchant(c.Request.Context(), merchantID, limit, c.Query("cursor"))
	if err != nil {
		abortWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// cancelPayment handles POST /payments/:payment_id/cancel
func (s *Server) cancelPayment(c *gin.Context) {
	paymentID := c.Param("payment_id")

	var req models.CancelPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_JSON", "Invalid request body"))
		return
	}

	if err := validator.ValidateCancelPaymentRequest(paymentID, &req); err != nil {
		abortWithAppError(c, err)
		return
	}

	payment, err := s.machine.Cancel(c.Request.Context(), paymentID, req.MerchantID)
	if err != nil {
		abortWithAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, payment)
}

// ingestChainhook handles POST /chainhook
func (s *Server) ingestChainhook(c *gin.Context) {
	if !s.authorized(c) {
		c.JSON(http.StatusUnauthorized, errorBody("UNAUTHORIZED", "Invalid or missing bearer token"))
		return
	}

	var batch models.ChainhookBatch
	if err := c.ShouldBindJSON(&batch); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_JSON", "Invalid request body"))
		return
	}

	result := s.processor.ProcessBatch(c.Request.Context(), &batch)
	c.JSON(http.StatusOK, result)
}

// authorized checks the chainhook bearer token. An empty configured token
// accepts everything (local development).
func (s *Server) authorized(c *gin.Context) bool {
	expected := s.cfg.Chain.ChainhookToken
	if expected == "" {
		return true
	}

	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	return token != "" && token == expected
}

// putMerchant handles PUT /merchants/:merchant_id. The in-memory store
// starts empty, so merchants are registered over HTTP before payments can
// reference them.
func (s *Server) putMerchant(c *gin.Context) {
	var merchant models.Merchant
	if err := c.ShouldBindJSON(&merchant); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_JSON", "Invalid request body"))
		return
	}

	merchant.MerchantID = c.Param("merchant_id")

	if !validator.IsStacksAddress(merchant.SettlementAddress) {
		c.JSON(http.StatusBadRequest, errorBody("VALIDATION_ERROR", "settlement_address must be a valid Stacks address"))
		return
	}

	if merchant.FeeRatePercent < 0 || merchant.FeeRatePercent > 100 {
		c.JSON(http.StatusBadRequest, errorBody("VALIDATION_ERROR", "fee_rate_percent must be between 0 and 100"))
		return
	}

	if merchant.CreatedAt.IsZero() {
		merchant.CreatedAt = time.Now().UTC()
	}

	if err := s.store.PutMerchant(c.Request.Context(), &merchant); err != nil {
		abortWithAppError(c, err)
		return
	}

	logger.Info("Merchant registered", logger.Fields{
		"merchant_id":        merchant.MerchantID,
		"settlement_address": merchant.SettlementAddress,
	})

	c.JSON(http.StatusOK, merchant)
}

// runSweeper settles due payments on a fixed cadence. In the Lambda
// deployment the settlement queue does this; here the ticker is the only
// driver.
func (s *Server) runSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.machine.SweepDueSettlements(ctx, sweepBatchSize); err != nil {
				logger.Error("Settlement sweep failed", logger.Fields{
					"error": err.Error(),
				})
			}
		}
	}
}

// errorBody mirrors the Lambda error envelope
func errorBody(code, message string) apperrors.ErrorResponse {
	return apperrors.ErrorResponse{
		Error: apperrors.ErrorDetail{
			Code:    code,
			Message: message,
		},
	}
}

// abortWithAppError maps an application error onto an HTTP response
func abortWithAppError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		c.JSON(appErr.StatusCode, apperrors.ToErrorResponse(appErr))
		return
	}
	c.JSON(http.StatusInternalServerError, errorBody("INTERNAL_ERROR", "Internal server error"))
}

func main() {
	// Load .env before reading configuration; missing files are fine
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", logger.Fields{"error": err.Error()})
		panic(err)
	}

	log := logger.NewFromString(cfg.Logging.Level)
	logger.SetDefault(log)

	server, err := NewServer(cfg)
	if err != nil {
		logger.Error("Failed to create server", logger.Fields{"error": err.Error()})
		panic(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.runSweeper(ctx, time.Duration(cfg.Payments.SweepIntervalSeconds)*time.Second)

	logger.Info("Starting gateway server", logger.Fields{
		"port":    cfg.Server.Port,
		"network": cfg.Chain.Network,
	})

	if err := server.routes().Run(":" + cfg.Server.Port); err != nil {
		logger.Error("Server stopped", logger.Fields{"error": err.Error()})
		panic(err)
	}
}
