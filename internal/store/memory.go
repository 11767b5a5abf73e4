package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/TheSoftNode/StacksPay-sub004/internal/errors"
	"github.com/TheSoftNode/StacksPay-sub004/internal/models"
)

// MemoryStore is an in-memory implementation of PaymentStore and
// MerchantStore. It backs the standalone server and tests with the same
// compare-and-set semantics as the DynamoDB store.
type MemoryStore struct {
	mu        sync.RWMutex
	payments  map[string]*models.Payment
	byAddress map[string]string
	byIdemKey map[string]string
	merchants map[string]*models.Merchant
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payments:  make(map[string]*models.Payment),
		byAddress: make(map[string]string),
		byIdemKey: make(map[string]string),
		merchants: make(map[string]*models.Merchant),
	}
}

// CreatePayment creates a new payment record
func (m *MemoryStore) CreatePayment(ctx context.Context, payment *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.payments[payment.PaymentID]; exists {
		return errors.ErrDuplicateRequest(payment.IdempotencyKey)
	}

	if payment.IdempotencyKey != "" {
		if _, exists := m.byIdemKey[payment.IdempotencyKey]; exists {
			return errors.ErrDuplicateRequest(payment.IdempotencyKey)
		}
	}

	cp := clonePayment(payment)
	m.payments[payment.PaymentID] = cp
	m.byAddress[payment.UniqueAddress] = payment.PaymentID
	if payment.IdempotencyKey != "" {
		m.byIdemKey[payment.IdempotencyKey] = payment.PaymentID
	}

	return nil
}

// GetPaymentByID retrieves a payment by its ID
func (m *MemoryStore) GetPaymentByID(ctx context.Context, paymentID string) (*models.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	payment, exists := m.payments[paymentID]
	if !exists {
		return nil, errors.ErrPaymentNotFound(paymentID)
	}

	return clonePayment(payment), nil
}

// GetPaymentByAddress resolves a payment by its unique receiving address
func (m *MemoryStore) GetPaymentByAddress(ctx context.Context, uniqueAddress string) (*models.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	paymentID, exists := m.byAddress[uniqueAddress]
	if !exists {
		return nil, nil
	}

	return clonePayment(m.payments[paymentID]), nil
}

// GetPaymentByIdempotencyKey retrieves a payment by its idempotency key
func (m *MemoryStore) GetPaymentByIdempotencyKey(ctx context.Context, idempotencyKey string) (*models.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	paymentID, exists := m.byIdemKey[idempotencyKey]
	if !exists {
		return nil, nil
	}

	return clonePayment(m.payments[paymentID]), nil
}

// ListPaymentsByMerchant returns one page of a merchant's payments,
// newest first. The cursor is the payment id the previous page ended on.
func (m *MemoryStore) ListPaymentsByMerchant(ctx context.Context, merchantID string, limit int, cursor string) (*models.PaymentPage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []*models.Payment
	for _, p := range m.payments {
		if p.MerchantID == merchantID {
			all = append(all, p)
		}
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].PaymentID > all[j].PaymentID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	start := 0
	if cursor != "" {
		for i, p := range all {
			if p.PaymentID == cursor {
				start = i + 1
				break
			}
		}
	}

	end := len(all)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	page := &models.PaymentPage{Payments: make([]models.Payment, 0, end-start)}
	for _, p := range all[start:end] {
		page.Payments = append(page.Payments, *clonePayment(p))
	}

	if end < len(all) && len(page.Payments) > 0 {
		page.NextCursor = page.Payments[len(page.Payments)-1].PaymentID
	}

	return page, nil
}

// ListDueSettlements returns confirmed payments whose settle_after has
// passed, oldest first
func (m *MemoryStore) ListDueSettlements(ctx context.Context, dueBy time.Time, limit int) ([]models.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var due []*models.Payment
	for _, p := range m.payments {
		if p.Status != models.StatusConfirmed || p.SettleAfter == nil {
			continue
		}
		if p.SettleAfter.After(dueBy) {
			continue
		}
		due = append(due, p)
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].SettleAfter.Before(*due[j].SettleAfter)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]models.Payment, 0, len(due))
	for _, p := range due {
		out = append(out, *clonePayment(p))
	}

	return out, nil
}

// TransitionStatus applies a compare-and-set status update under the
// store lock. A lost race returns (false, nil).
func (m *MemoryStore) TransitionStatus(ctx context.Context, paymentID string, from models.PaymentStatus, update StatusUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	payment, exists := m.payments[paymentID]
	if !exists {
		return false, nil
	}

	if payment.Status != from {
		return false, nil
	}

	payment.Status = update.To
	payment.UpdatedAt = time.Now().UTC()

	if update.ConfirmedAt != nil {
		payment.ConfirmedAt = update.ConfirmedAt
		payment.ReceivedAmount = update.ReceivedAmount
		payment.ReceiveTxID = update.ReceiveTxID
	}

	if update.SettleAfter != nil {
		payment.SettleAfter = update.SettleAfter
	}

	if update.SettledAt != nil {
		payment.SettledAt = update.SettledAt
		payment.FeeAmount = update.FeeAmount
		payment.NetAmount = update.NetAmount
	}

	if update.SettlementTxID != "" {
		payment.SettlementTxID = update.SettlementTxID
	}

	if update.ErrorMessage != "" {
		payment.ErrorMessage = update.ErrorMessage
	}

	return true, nil
}

// SetContractLinkage records a contract tx id on an existing payment
func (m *MemoryStore) SetContractLinkage(ctx context.Context, paymentID string, field LinkageField, txID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	payment, exists := m.payments[paymentID]
	if !exists {
		return errors.ErrPaymentNotFound(paymentID)
	}

	switch field {
	case LinkageRegister:
		payment.ContractRegisterTxID = txID
	case LinkageConfirm:
		payment.ContractConfirmTxID = txID
	case LinkageSettle:
		payment.ContractSettleTxID = txID
	}
	payment.UpdatedAt = time.Now().UTC()

	return nil
}

// GetMerchant retrieves a merchant by ID
func (m *MemoryStore) GetMerchant(ctx context.Context, merchantID string) (*models.Merchant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	merchant, exists := m.merchants[merchantID]
	if !exists {
		return nil, errors.ErrMerchantNotFound(merchantID)
	}

	cp := *merchant
	return &cp, nil
}

// PutMerchant stores a merchant record. Used for seeding the standalone
// server and tests.
func (m *MemoryStore) PutMerchant(ctx context.Context, merchant *models.Merchant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *merchant
	m.merchants[merchant.MerchantID] = &cp
	return nil
}

// clonePayment returns a copy so callers cannot mutate stored state
func clonePayment(p *models.Payment) *models.Payment {
	cp := *p
	if p.Metadata != nil {
		cp.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
