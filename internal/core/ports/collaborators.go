package ports

import (
	"context"

	"phantom-ledger/internal/core/domain"

	"github.com/google/uuid"
)

// CustomerInfo is what the bank needs to open an account for a wallet holder.
type CustomerInfo struct {
	WalletID   uuid.UUID
	BusinessID uuid.UUID
	Name       string
	Phone      string
	Email      *string
}

// BankAccountService opens real accounts and moves phantom balances into them.
// Both calls must be idempotent on idempotencyKey.
type BankAccountService interface {
	CreateAccount(ctx context.Context, customer CustomerInfo, idempotencyKey string) (string, error)
	TransferIn(ctx context.Context, accountRef string, amount int64, idempotencyKey string) (string, error)
}

// KYCService reports a customer's verification status.
type KYCService interface {
	Status(ctx context.Context, customerRef string) (domain.KYCStatus, error)
}

// SettlementPublisher hands a completed transaction to the settlement sink and
// returns the sink's reference for it.
type SettlementPublisher interface {
	Publish(ctx context.Context, event domain.SettlementEvent) (string, error)
	Name() string
}
