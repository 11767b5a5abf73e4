package contract

import "context"

// Facade is the boundary to the on-chain payment gateway contract. Every
// call submits a transaction and returns its id; submission is not
// confirmation. Calls can fail transiently and are fire-and-forget with
// respect to payment status: the state machine logs failures and moves on.
type Facade interface {
	// Register announces a new payment to the contract.
	Register(ctx context.Context, paymentID, merchantAddress, uniqueAddress string, expectedAmount int64, memo string, expiryBlocks int64) (string, error)

	// ConfirmReceived records on-chain that funds arrived for a payment.
	ConfirmReceived(ctx context.Context, paymentID string, amount int64, receiveTxID string) (string, error)

	// Settle marks a payment settled in the contract.
	Settle(ctx context.Context, paymentID string) (string, error)

	// Transfer moves STX from a gateway-held address. Key material is
	// scoped to the call and must never be retained or logged.
	Transfer(ctx context.Context, from, to string, amount int64, keyMaterial []byte, memo string) (string, error)
}
