package domain

import (
	"time"

	"github.com/google/uuid"
)

// Direction tells whether money moved into or out of a wallet.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// IsValid reports whether d is credit or debit.
func (d Direction) IsValid() bool {
	return d == DirectionCredit || d == DirectionDebit
}

// TransactionKind separates customer payments from the entries the ledger writes itself.
type TransactionKind string

const (
	TransactionKindPayment         TransactionKind = "payment"
	TransactionKindFee             TransactionKind = "fee"
	TransactionKindUpgradeTransfer TransactionKind = "upgrade_transfer"
	TransactionKindReversal        TransactionKind = "reversal"
)

// TransactionStatus represents the lifecycle state of a transaction.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// SettlementStatus tracks delivery of a completed transaction to the settlement sink.
type SettlementStatus string

const (
	SettlementStatusPending     SettlementStatus = "pending"
	SettlementStatusSettled     SettlementStatus = "settled"
	SettlementStatusFailed      SettlementStatus = "failed"
	SettlementStatusNotRequired SettlementStatus = "not_required"
)

// Transaction is an immutable ledger entry. Only the settlement fields change
// after the status is resolved, and rows are never deleted.
type Transaction struct {
	ID                  uuid.UUID         `json:"id"`
	Reference           string            `json:"reference"`
	WalletID            uuid.UUID         `json:"wallet_id"`
	BusinessID          uuid.UUID         `json:"business_id"`
	Direction           Direction         `json:"direction"`
	Amount              int64             `json:"amount"` // minor units, > 0
	Channel             Channel           `json:"channel"`
	Kind                TransactionKind   `json:"kind"`
	Status              TransactionStatus `json:"status"`
	LinkedTransactionID *uuid.UUID        `json:"linked_transaction_id,omitempty"`
	BalanceAfter        int64             `json:"balance_after"`
	Metadata            map[string]string `json:"metadata,omitempty"`
	SettlementRef       *string           `json:"settlement_ref,omitempty"`
	SettlementStatus    SettlementStatus  `json:"settlement_status"`
	CreatedAt           time.Time         `json:"created_at"`
	ProcessedAt         *time.Time        `json:"processed_at,omitempty"`
}

// IsTerminal returns true if the transaction is in a final state.
func (t *Transaction) IsTerminal() bool {
	return t.Status == TransactionStatusCompleted ||
		t.Status == TransactionStatusFailed ||
		t.Status == TransactionStatusCancelled
}

// Signed returns the amount with the sign of its effect on the balance.
func (t *Transaction) Signed() int64 {
	if t.Direction == DirectionDebit {
		return -t.Amount
	}
	return t.Amount
}

// SameIntent reports whether a replayed request matches this transaction.
func (t *Transaction) SameIntent(walletID uuid.UUID, amount int64, direction Direction) bool {
	return t.WalletID == walletID && t.Amount == amount && t.Direction == direction
}

// ReversalReference derives the reference of the entry that compensates a
// transfer leg which could not complete.
func ReversalReference(reference string) string {
	return reference + ":reversal"
}

// FeeReference derives the reference of the fee entry linked to a payment.
func FeeReference(reference string) string {
	return reference + ":fee"
}
