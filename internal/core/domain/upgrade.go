package domain

import (
	"time"

	"github.com/google/uuid"
)

// UpgradeState is a step of the phantom-to-bank-account upgrade.
type UpgradeState string

const (
	UpgradeStateRequested          UpgradeState = "requested"
	UpgradeStateKYCPending         UpgradeState = "kyc_pending"
	UpgradeStateKYCComplete        UpgradeState = "kyc_complete"
	UpgradeStateAccountCreated     UpgradeState = "account_created"
	UpgradeStateBalanceTransferred UpgradeState = "balance_transferred"
	UpgradeStateUpgraded           UpgradeState = "upgraded"
)

var upgradeOrder = []UpgradeState{
	UpgradeStateRequested,
	UpgradeStateKYCPending,
	UpgradeStateKYCComplete,
	UpgradeStateAccountCreated,
	UpgradeStateBalanceTransferred,
	UpgradeStateUpgraded,
}

// IsTerminal returns true once the wallet has been upgraded.
func (s UpgradeState) IsTerminal() bool {
	return s == UpgradeStateUpgraded
}

// Next returns the state that follows s, or s itself when terminal.
func (s UpgradeState) Next() UpgradeState {
	for i, st := range upgradeOrder {
		if st == s && i+1 < len(upgradeOrder) {
			return upgradeOrder[i+1]
		}
	}
	return s
}

// OpenUpgradeStates lists the states a worker still has to drive forward.
func OpenUpgradeStates() []UpgradeState {
	return upgradeOrder[:len(upgradeOrder)-1]
}

// UpgradeWorkflow is the durable record of one wallet upgrade.
// Only one non-terminal workflow may exist per wallet.
type UpgradeWorkflow struct {
	ID             uuid.UUID    `json:"id"`
	WalletID       uuid.UUID    `json:"wallet_id"`
	BusinessID     uuid.UUID    `json:"business_id"`
	State          UpgradeState `json:"state"`
	AccountRef     *string      `json:"account_ref,omitempty"`
	TransferRef    *string      `json:"transfer_ref,omitempty"`
	TransferAmount *int64       `json:"transfer_amount,omitempty"` // balance snapshot taken at freeze
	Frozen         bool         `json:"frozen"`
	Attempts       int          `json:"attempts"`
	Alert          bool         `json:"alert"`
	LastError      *string      `json:"last_error,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
}

// CreateAccountKey is the idempotency key sent with the bank account creation.
func (w *UpgradeWorkflow) CreateAccountKey() string {
	return BuildIdempotencyKey(w.ID, "create-account")
}

// TransferInKey is the idempotency key sent with the balance transfer.
func (w *UpgradeWorkflow) TransferInKey() string {
	return BuildIdempotencyKey(w.ID, "transfer-in")
}

// TransferReference is the ledger reference of the transfer-out debit.
func (w *UpgradeWorkflow) TransferReference() string {
	return "upgrade:" + w.ID.String()
}

// RaiseAlert records a failed step without moving the state.
func (w *UpgradeWorkflow) RaiseAlert(err error) {
	msg := err.Error()
	w.Alert = true
	w.LastError = &msg
	w.Attempts++
}

// ClearAlert resets the failure markers after a step succeeds.
func (w *UpgradeWorkflow) ClearAlert() {
	w.Alert = false
	w.LastError = nil
	w.Attempts = 0
}
