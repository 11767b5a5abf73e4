package contract

import (
	"context"
	"fmt"
	"sync"

	"github.com/TheSoftNode/StacksPay-sub004/internal/logger"
)

// Registration captures what a fake Register call recorded
type Registration struct {
	PaymentID       string
	MerchantAddress string
	UniqueAddress   string
	ExpectedAmount  int64
	Memo            string
	ExpiryBlocks    int64
}

// TransferRecord captures what a fake Transfer call recorded. Key material
// is deliberately not retained.
type TransferRecord struct {
	From   string
	To     string
	Amount int64
	Memo   string
}

// Fake is a stateful in-memory Facade for tests and the standalone
// server. Failures are injected per operation name and fire once.
type Fake struct {
	mu            sync.Mutex
	seq           int
	registrations map[string]Registration
	confirmations map[string]int64
	settlements   map[string]bool
	transfers     []TransferRecord
	failures      map[string]error
}

// NewFake creates an empty fake facade
func NewFake() *Fake {
	return &Fake{
		registrations: make(map[string]Registration),
		confirmations: make(map[string]int64),
		settlements:   make(map[string]bool),
		failures:      make(map[string]error),
	}
}

// FailNext makes the next call to the named operation ("register",
// "confirm", "settle" or "transfer") return err.
func (f *Fake) FailNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = err
}

func (f *Fake) takeFailure(op string) error {
	if err, ok := f.failures[op]; ok {
		delete(f.failures, op)
		return err
	}
	return nil
}

func (f *Fake) nextTxID() string {
	f.seq++
	return fmt.Sprintf("0x%064x", f.seq)
}

// Register announces a new payment to the contract
func (f *Fake) Register(ctx context.Context, paymentID, merchantAddress, uniqueAddress string, expectedAmount int64, memo string, expiryBlocks int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.takeFailure("register"); err != nil {
		return "", err
	}

	f.registrations[paymentID] = Registration{
		PaymentID:       paymentID,
		MerchantAddress: merchantAddress,
		UniqueAddress:   uniqueAddress,
		ExpectedAmount:  expectedAmount,
		Memo:            memo,
		ExpiryBlocks:    expiryBlocks,
	}

	txID := f.nextTxID()
	logger.Debug("Fake contract register", logger.Fields{"payment_id": paymentID, "tx_id": txID})
	return txID, nil
}

// ConfirmReceived records on-chain that funds arrived for a payment
func (f *Fake) ConfirmReceived(ctx context.Context, paymentID string, amount int64, receiveTxID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.takeFailure("confirm"); err != nil {
		return "", err
	}

	f.confirmations[paymentID] = amount

	txID := f.nextTxID()
	logger.Debug("Fake contract confirm", logger.Fields{"payment_id": paymentID, "tx_id": txID})
	return txID, nil
}

// Settle marks a payment settled in the contract
func (f *Fake) Settle(ctx context.Context, paymentID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.takeFailure("settle"); err != nil {
		return "", err
	}

	f.settlements[paymentID] = true

	txID := f.nextTxID()
	logger.Debug("Fake contract settle", logger.Fields{"payment_id": paymentID, "tx_id": txID})
	return txID, nil
}

// Transfer moves STX from a gateway-held address
func (f *Fake) Transfer(ctx context.Context, from, to string, amount int64, keyMaterial []byte, memo string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.takeFailure("transfer"); err != nil {
		return "", err
	}

	if len(keyMaterial) == 0 {
		return "", fmt.Errorf("transfer requires key material")
	}

	if amount <= 0 {
		return "", fmt.Errorf("transfer amount must be positive")
	}

	f.transfers = append(f.transfers, TransferRecord{
		From:   from,
		To:     to,
		Amount: amount,
		Memo:   memo,
	})

	txID := f.nextTxID()
	logger.Debug("Fake contract transfer", logger.Fields{"from": from, "to": to, "amount": amount, "tx_id": txID})
	return txID, nil
}

// Registration returns what Register recorded for a payment
func (f *Fake) Registration(paymentID string) (Registration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reg, ok := f.registrations[paymentID]
	return reg, ok
}

// ConfirmedAmount returns the amount ConfirmReceived recorded
func (f *Fake) ConfirmedAmount(paymentID string) (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	amount, ok := f.confirmations[paymentID]
	return amount, ok
}

// Transfers returns a copy of all recorded transfers
func (f *Fake) Transfers() []TransferRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]TransferRecord, len(f.transfers))
	copy(out, f.transfers)
	return out
}
