package models

// Operation types delivered by the chainhook.
const (
	OperationSTXTransfer   = "stx_transfer"
	OperationContractEvent = "contract_event"
)

// Contract event topics emitted by the gateway contract.
const (
	TopicPaymentRegistered = "payment-registered"
	TopicPaymentConfirmed  = "payment-confirmed"
	TopicPaymentSettled    = "payment-settled"
)

// ChainhookBatch is an inbound batch of blocks from the chainhook service.
// Batches may be redelivered; idempotency is the store's responsibility.
type ChainhookBatch struct {
	Blocks []Block `json:"blocks"`
}

// Block is one blockchain block within a batch
type Block struct {
	BlockHeight  int64              `json:"block_height"`
	Transactions []BlockTransaction `json:"transactions"`
}

// BlockTransaction is one transaction within a block
type BlockTransaction struct {
	TxID       string      `json:"tx_id"`
	Operations []Operation `json:"operations"`
}

// Operation is a typed operation within a transaction. Data carries the
// union of fields for both operation types; which are meaningful depends
// on Type.
type Operation struct {
	Type string        `json:"type"`
	Data OperationData `json:"data"`
}

// OperationData holds the payload of an operation
type OperationData struct {
	// stx_transfer fields
	Sender    string `json:"sender,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	Amount    int64  `json:"amount,omitempty"`

	// contract_event fields
	ContractIdentifier string `json:"contract_identifier,omitempty"`
	Topic              string `json:"topic,omitempty"`
	PaymentID          string `json:"payment_id,omitempty"`
}
