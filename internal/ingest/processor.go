package ingest

import (
	"context"
	"fmt"

	"github.com/TheSoftNode/StacksPay-sub004/internal/fees"
	"github.com/TheSoftNode/StacksPay-sub004/internal/lifecycle"
	"github.com/TheSoftNode/StacksPay-sub004/internal/logger"
	"github.com/TheSoftNode/StacksPay-sub004/internal/models"
	"github.com/TheSoftNode/StacksPay-sub004/internal/store"
)

// Processor turns chainhook batches into state machine input. Blocks are
// handled in delivery order and one bad operation never aborts the batch.
type Processor struct {
	payments   store.PaymentStore
	machine    *lifecycle.Machine
	contractID string
}

// NewProcessor creates a batch processor scoped to one gateway contract
func NewProcessor(payments store.PaymentStore, machine *lifecycle.Machine, contractID string) *Processor {
	return &Processor{
		payments:   payments,
		machine:    machine,
		contractID: contractID,
	}
}

// OperationError records one operation that could not be handled
type OperationError struct {
	BlockHeight int64  `json:"block_height"`
	TxID        string `json:"tx_id"`
	Reason      string `json:"reason"`
}

// Result summarizes one batch
type Result struct {
	Processed int              `json:"processed"`
	Errors    []OperationError `json:"errors,omitempty"`
}

// ProcessBatch walks every operation in the batch. Transfers below the
// dust threshold or to unrecognized addresses are discarded quietly;
// operations that fail to resolve or persist are collected as errors.
func (p *Processor) ProcessBatch(ctx context.Context, batch *models.ChainhookBatch) Result {
	result := Result{}

	for _, block := range batch.Blocks {
		for _, tx := range block.Transactions {
			for _, op := range tx.Operations {
				if err := p.processOperation(ctx, block.BlockHeight, tx.TxID, op); err != nil {
					result.Errors = append(result.Errors, OperationError{
						BlockHeight: block.BlockHeight,
						TxID:        tx.TxID,
						Reason:      err.Error(),
					})
					continue
				}
				result.Processed++
			}
		}
	}

	logger.Info("Chainhook batch processed", logger.Fields{
		"blocks":    len(batch.Blocks),
		"processed": result.Processed,
		"errors":    len(result.Errors),
	})
	return result
}

func (p *Processor) processOperation(ctx context.Context, blockHeight int64, txID string, op models.Operation) error {
	switch op.Type {
	case models.OperationSTXTransfer:
		return p.processTransfer(ctx, blockHeight, txID, op.Data)
	case models.OperationContractEvent:
		return p.processContractEvent(ctx, txID, op.Data)
	default:
		// Chainhook predicates can deliver operation types we do not
		// consume. Not an error.
		logger.Debug("Skipping unhandled operation type", logger.Fields{
			"type":  op.Type,
			"tx_id": txID,
		})
		return nil
	}
}

// processTransfer routes one observed STX transfer
func (p *Processor) processTransfer(ctx context.Context, blockHeight int64, txID string, data models.OperationData) error {
	if data.Amount < fees.DustThreshold {
		logger.Debug("Discarding sub-dust transfer", logger.Fields{
			"tx_id":  txID,
			"amount": data.Amount,
		})
		return nil
	}

	payment, err := p.payments.GetPaymentByAddress(ctx, data.Recipient)
	if err != nil {
		return fmt.Errorf("address lookup failed: %w", err)
	}
	if payment == nil {
		// Transfer to an address we never minted. Common and harmless.
		logger.Debug("Discarding transfer to unrecognized address", logger.Fields{
			"tx_id":     txID,
			"recipient": data.Recipient,
		})
		return nil
	}

	return p.machine.HandleTransfer(ctx, payment, lifecycle.TransferEvent{
		TxID:        txID,
		Sender:      data.Sender,
		Recipient:   data.Recipient,
		Amount:      data.Amount,
		BlockHeight: blockHeight,
	})
}

// processContractEvent records contract transaction linkage. Events are
// observational and never change payment status.
func (p *Processor) processContractEvent(ctx context.Context, txID string, data models.OperationData) error {
	if data.ContractIdentifier != p.contractID {
		logger.Debug("Skipping event from foreign contract", logger.Fields{
			"contract": data.ContractIdentifier,
			"tx_id":    txID,
		})
		return nil
	}

	if data.PaymentID == "" {
		return fmt.Errorf("contract event %q carries no payment id", data.Topic)
	}

	var field store.LinkageField
	switch data.Topic {
	case models.TopicPaymentRegistered:
		field = store.LinkageRegister
	case models.TopicPaymentConfirmed:
		field = store.LinkageConfirm
	case models.TopicPaymentSettled:
		field = store.LinkageSettle
	default:
		return fmt.Errorf("unrecognized event topic %q", data.Topic)
	}

	if err := p.payments.SetContractLinkage(ctx, data.PaymentID, field, txID); err != nil {
		return fmt.Errorf("failed to record %s linkage: %w", data.Topic, err)
	}

	logger.Debug("Recorded contract linkage", logger.Fields{
		"payment_id": data.PaymentID,
		"topic":      data.Topic,
		"tx_id":      txID,
	})
	return nil
}
