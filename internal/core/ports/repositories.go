package ports

import (
	"context"
	"errors"
	"time"

	"phantom-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrUniqueViolation is returned (wrapped) by repositories when an insert collides
// with a unique constraint such as a transaction reference or wallet access token.
var ErrUniqueViolation = errors.New("unique constraint violation")

// BusinessRepository defines persistence operations for businesses.
type BusinessRepository interface {
	Create(ctx context.Context, business *domain.Business) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Business, error)
	GetByEmail(ctx context.Context, email string) (*domain.Business, error)
	GetByAccessKey(ctx context.Context, accessKey string) (*domain.Business, error)
}

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type WalletRepository interface {
	Create(ctx context.Context, wallet *domain.Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	GetByAccessToken(ctx context.Context, accessToken string) (*domain.Wallet, error)
	List(ctx context.Context, params WalletListParams) ([]domain.Wallet, int64, error)
	CountByStatus(ctx context.Context, businessID uuid.UUID) (map[domain.WalletStatus]int64, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance int64) error
	UpdateStatus(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, status domain.WalletStatus, linkedAccountRef *string) error
	UpdateLimits(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, dailyLimit, monthlyLimit int64) error
}

// WalletListParams holds filter + pagination for listing a business's wallets.
type WalletListParams struct {
	BusinessID uuid.UUID
	Status     *domain.WalletStatus
	Page       int
	PageSize   int
}

// TransactionRepository defines persistence operations for transactions.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetByReference(ctx context.Context, reference string) (*domain.Transaction, error)
	// GetByReferenceTx reads inside the caller's transaction so the lookup sees the
	// same snapshot as the locked wallet row.
	GetByReferenceTx(ctx context.Context, tx pgx.Tx, reference string) (*domain.Transaction, error)
	SumCompleted(ctx context.Context, tx pgx.Tx, params UsageParams) (int64, error)
	List(ctx context.Context, params TransactionListParams) ([]domain.Transaction, error)
	UpdateSettlement(ctx context.Context, id uuid.UUID, ref *string, status domain.SettlementStatus) error
	GetStats(ctx context.Context, businessID uuid.UUID, periodStart *time.Time) (*TransactionStats, error)
	Reconcile(ctx context.Context) ([]BalanceMismatch, error)
}

// UsageParams selects the completed payment volume counted against a limit window.
type UsageParams struct {
	WalletID   uuid.UUID
	Directions []domain.Direction
	From       time.Time // inclusive
	To         time.Time // exclusive
}

// TransactionListParams holds filters and keyset cursor for wallet history.
type TransactionListParams struct {
	WalletID   *uuid.UUID
	BusinessID *uuid.UUID
	Direction  *domain.Direction
	Channel    *domain.Channel
	Status     *domain.TransactionStatus
	From       *time.Time
	To         *time.Time
	Cursor     *Cursor
	Limit      int
}

// Cursor is the (created_at, id) position of the last row of the previous page.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// TransactionStats holds aggregates derived from transaction history.
type TransactionStats struct {
	TotalTransactions int64
	Completed         int64
	Failed            int64
	CreditVolume      int64
	DebitVolume       int64
	FeeVolume         int64
}

// BalanceMismatch reports a wallet whose stored balance differs from its history.
type BalanceMismatch struct {
	WalletID uuid.UUID
	Stored   int64
	Derived  int64
}

// UpgradeRepository defines persistence operations for upgrade workflows.
type UpgradeRepository interface {
	Create(ctx context.Context, workflow *domain.UpgradeWorkflow) error
	// CreateTx inserts the workflow inside tx, normally under the wallet lock.
	CreateTx(ctx context.Context, tx pgx.Tx, workflow *domain.UpgradeWorkflow) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.UpgradeWorkflow, error)
	GetOpenByWallet(ctx context.Context, walletID uuid.UUID) (*domain.UpgradeWorkflow, error)
	Update(ctx context.Context, workflow *domain.UpgradeWorkflow) error
	UpdateTx(ctx context.Context, tx pgx.Tx, workflow *domain.UpgradeWorkflow) error
	ListOpen(ctx context.Context, updatedBefore time.Time, limit int) ([]domain.UpgradeWorkflow, error)
}

// SettlementRepository persists the settlement outbox.
type SettlementRepository interface {
	Create(ctx context.Context, delivery *domain.SettlementDelivery) error
	Update(ctx context.Context, delivery *domain.SettlementDelivery) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.SettlementDelivery, error)
	// ListUnqueued returns payments pending settlement, created at or before
	// cutoff, that have no delivery row.
	ListUnqueued(ctx context.Context, cutoff time.Time, limit int) ([]domain.Transaction, error)
	GetByTransactionID(ctx context.Context, txID uuid.UUID) ([]domain.SettlementDelivery, error)
}

// IdempotencyRepository memoizes completed collaborator calls.
type IdempotencyRepository interface {
	// Save stores the log; an existing key is left untouched.
	Save(ctx context.Context, log *domain.IdempotencyLog) error
	Get(ctx context.Context, key string) (*domain.IdempotencyLog, error)
}

// AuditRepository persists audit log entries.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
