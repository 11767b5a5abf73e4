package errors

import (
	"fmt"
	"net/http"
)

// AppError represents an application error with HTTP status code
type AppError struct {
	Code       string // Machine-readable error code
	Message    string // Human-readable error message
	StatusCode int    // HTTP status code
	Err        error  // Underlying error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (underlying: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code, message string, statusCode int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// Common error constructors

// ErrInvalidRequest creates an invalid request error
func ErrInvalidRequest(message string, err error) *AppError {
	return &AppError{
		Code:       "INVALID_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

// ErrValidation creates a validation error
func ErrValidation(field, reason string) *AppError {
	return &AppError{
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("Validation failed for field '%s': %s", field, reason),
		StatusCode: http.StatusBadRequest,
		Err:        nil,
	}
}

// ErrMissingHeader creates a missing header error
func ErrMissingHeader(headerName string) *AppError {
	return &AppError{
		Code:       "MISSING_HEADER",
		Message:    fmt.Sprintf("Required header '%s' is missing", headerName),
		StatusCode: http.StatusBadRequest,
		Err:        nil,
	}
}

// ErrUnauthorized creates an unauthorized error
func ErrUnauthorized(message string) *AppError {
	return &AppError{
		Code:       "UNAUTHORIZED",
		Message:    message,
		StatusCode: http.StatusUnauthorized,
		Err:        nil,
	}
}

// ErrDuplicateRequest creates a duplicate request error
func ErrDuplicateRequest(idempotencyKey string) *AppError {
	return &AppError{
		Code:       "DUPLICATE_REQUEST",
		Message:    fmt.Sprintf("Request with idempotency key '%s' already exists", idempotencyKey),
		StatusCode: http.StatusConflict,
		Err:        nil,
	}
}

// ErrPaymentNotFound creates a payment not found error
func ErrPaymentNotFound(paymentID string) *AppError {
	return &AppError{
		Code:       "PAYMENT_NOT_FOUND",
		Message:    fmt.Sprintf("Payment '%s' not found", paymentID),
		StatusCode: http.StatusNotFound,
		Err:        nil,
	}
}

// ErrMerchantNotFound creates a merchant not found error
func ErrMerchantNotFound(merchantID string) *AppError {
	return &AppError{
		Code:       "MERCHANT_NOT_FOUND",
		Message:    fmt.Sprintf("Merchant '%s' not found", merchantID),
		StatusCode: http.StatusNotFound,
		Err:        nil,
	}
}

// ErrNotCancellable creates an error for cancelling a payment that has
// already left the pending state
func ErrNotCancellable(paymentID, status string) *AppError {
	return &AppError{
		Code:       "NOT_CANCELLABLE",
		Message:    fmt.Sprintf("Payment '%s' is %s and can no longer be cancelled", paymentID, status),
		StatusCode: http.StatusConflict,
		Err:        nil,
	}
}

// ErrInternalServer creates an internal server error
func ErrInternalServer(message string, err error) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// ErrDatabaseOperation creates a database operation error
func ErrDatabaseOperation(operation string, err error) *AppError {
	return &AppError{
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("Database operation '%s' failed", operation),
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// ErrQueueOperation creates a queue operation error
func ErrQueueOperation(operation string, err error) *AppError {
	return &AppError{
		Code:       "QUEUE_ERROR",
		Message:    fmt.Sprintf("Queue operation '%s' failed", operation),
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// ErrContractCall creates an error for a failed on-chain contract call.
// These are transient from the caller's perspective and safe to retry.
func ErrContractCall(function string, err error) *AppError {
	return &AppError{
		Code:       "CONTRACT_CALL_ERROR",
		Message:    fmt.Sprintf("Contract call '%s' failed", function),
		StatusCode: http.StatusBadGateway,
		Err:        err,
	}
}

// ErrSettlementFailed creates an error for a settlement attempt that
// failed in a way that should mark the payment failed rather than retry
func ErrSettlementFailed(paymentID string, err error) *AppError {
	return &AppError{
		Code:       "SETTLEMENT_FAILED",
		Message:    fmt.Sprintf("Settlement for payment '%s' failed", paymentID),
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// ErrorResponse represents an error response structure
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details for API responses
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToErrorResponse converts an AppError to an ErrorResponse
func ToErrorResponse(err *AppError) ErrorResponse {
	return ErrorResponse{
		Error: ErrorDetail{
			Code:    err.Code,
			Message: err.Message,
		},
	}
}
