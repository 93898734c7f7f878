package ports

import (
	"context"
	"time"

	"phantom-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// HealthChecker checks external dependency health.
type HealthChecker interface {
	Ping(ctx context.Context) error
	Name() string
}

// EncryptionService handles AES-256-GCM encryption of stored secrets.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
	BuildCanonicalString(method, path string, timestamp int64, nonce string, body string) string
}

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// TokenService handles JWT token operations for the business dashboard.
type TokenService interface {
	Generate(businessID uuid.UUID, email string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	BusinessID uuid.UUID
	Email      string
}

// IdempotencyCache is the Redis-layer replay check in front of the ledger.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // nil when absent
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// NonceStore manages nonce uniqueness for replay attack prevention.
type NonceStore interface {
	// CheckAndSet returns true if the nonce is new for scope, false if already used.
	CheckAndSet(ctx context.Context, scope string, nonce string, ttl time.Duration) (bool, error)
}

// --- Ledger ---

// Guard runs under the wallet row lock before any write. A non-nil error aborts Apply.
type Guard func(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet) error

// ApplyRequest is one balance mutation.
type ApplyRequest struct {
	WalletID  uuid.UUID
	Amount    int64
	Direction domain.Direction
	Channel   domain.Channel
	Reference string
	Kind      domain.TransactionKind // defaults to payment
	Fee       int64                  // written as a linked fee debit when > 0
	Metadata  map[string]string
	Guard     Guard
}

// ApplyResult is the outcome of Apply. Replays return the stored original.
type ApplyResult struct {
	Transaction *domain.Transaction `json:"transaction"`
	Fee         *domain.Transaction `json:"fee,omitempty"`
	Balance     int64               `json:"balance"`
	Replayed    bool                `json:"-"`
}

// HistoryPage is one page of wallet history, newest first.
type HistoryPage struct {
	Transactions []domain.Transaction
	NextCursor   *Cursor // nil on the last page
}

// LedgerService owns every balance mutation.
type LedgerService interface {
	Apply(ctx context.Context, req ApplyRequest) (*ApplyResult, error)
	GetBalance(ctx context.Context, walletID uuid.UUID) (int64, error)
	History(ctx context.Context, params TransactionListParams) (*HistoryPage, error)
	// OpenUpgrade creates the workflow under the wallet lock, so it cannot race
	// a status change that checks for open upgrades.
	OpenUpgrade(ctx context.Context, workflow *domain.UpgradeWorkflow) error
	// FreezeForUpgrade suspends the wallet and snapshots its balance into the workflow.
	FreezeForUpgrade(ctx context.Context, workflow *domain.UpgradeWorkflow) error
	// FinalizeUpgrade records the transfer-out, zeroes the balance and marks the
	// wallet and workflow upgraded in one transaction.
	FinalizeUpgrade(ctx context.Context, workflow *domain.UpgradeWorkflow) error
}

// LimitReason names the limit a payment would breach.
type LimitReason string

const (
	LimitReasonNone    LimitReason = ""
	LimitReasonDaily   LimitReason = "daily"
	LimitReasonMonthly LimitReason = "monthly"
)

// LimitDecision is the outcome of a limit check.
type LimitDecision struct {
	Allowed   bool
	Reason    LimitReason
	Cap       int64
	Used      int64
	Requested int64
}

// LimitPolicy decides whether a payment fits the wallet's caps.
type LimitPolicy interface {
	// Counts reports whether payments in direction draw on the caps.
	Counts(direction domain.Direction) bool
	Check(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet, amount int64, now time.Time) (*LimitDecision, error)
}

// --- Payments ---

// PaymentResult is what the router reports back to the channel.
type PaymentResult struct {
	ApplyResult
	SettlementQueued bool
}

// TransferRequest moves funds between two phantom wallets of one business.
type TransferRequest struct {
	BusinessID uuid.UUID
	From       uuid.UUID
	To         uuid.UUID
	Amount     int64
	Reference  string
	Metadata   map[string]string
}

// TransferResult holds both legs of a transfer.
type TransferResult struct {
	Debit  *ApplyResult
	Credit *ApplyResult
}

// PaymentRouter validates channel payloads and applies them to the ledger.
type PaymentRouter interface {
	Process(ctx context.Context, payload domain.ChannelPayload) (*PaymentResult, error)
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
}

// SettlementService notifies the settlement sink about completed transactions.
type SettlementService interface {
	Enqueue(ctx context.Context, transaction *domain.Transaction) error
	RetryDue(ctx context.Context) (int, error)
}

// --- Upgrade ---

// UpgradeService drives wallets into real bank accounts.
type UpgradeService interface {
	Request(ctx context.Context, businessID, walletID uuid.UUID) (*domain.UpgradeWorkflow, error)
	Get(ctx context.Context, businessID, workflowID uuid.UUID) (*domain.UpgradeWorkflow, error)
	Advance(ctx context.Context, workflowID uuid.UUID) (*domain.UpgradeWorkflow, error)
	// KYCCompleted resumes a parked workflow after the KYC provider reports success.
	KYCCompleted(ctx context.Context, customerRef string) (*domain.UpgradeWorkflow, error)
	// RunPending advances every open workflow once and returns how many moved.
	RunPending(ctx context.Context) (int, error)
}

// --- Wallets and businesses ---

// CreateWalletRequest holds validated input for wallet creation.
type CreateWalletRequest struct {
	BusinessID    uuid.UUID
	CustomerName  string
	CustomerPhone string
	CustomerEmail *string
	DailyLimit    *int64
	MonthlyLimit  *int64
}

// WalletService manages the wallet lifecycle outside of payments.
type WalletService interface {
	Create(ctx context.Context, req CreateWalletRequest) (*domain.Wallet, error)
	Get(ctx context.Context, businessID, walletID uuid.UUID) (*domain.Wallet, error)
	List(ctx context.Context, params WalletListParams) ([]domain.Wallet, int64, error)
	UpdateLimits(ctx context.Context, businessID, walletID uuid.UUID, dailyLimit, monthlyLimit *int64) (*domain.Wallet, error)
	ChangeStatus(ctx context.Context, businessID, walletID uuid.UUID, status domain.WalletStatus) (*domain.Wallet, error)
}

// AuthService defines business authentication logic.
type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error)
	Login(ctx context.Context, email, password string) (string, time.Time, error) // token, expiry, error
}

// RegisterRequest holds input for business registration.
type RegisterRequest struct {
	Name                 string
	Email                string
	Phone                string
	Password             string
	SettlementAccountRef string
}

// RegisterResponse holds the registration result shown once.
type RegisterResponse struct {
	BusinessID uuid.UUID
	AccessKey  string
	SecretKey  string // plaintext, shown only at registration
}

// BusinessStats combines derived transaction aggregates with wallet counts.
type BusinessStats struct {
	TransactionStats
	WalletsByStatus map[domain.WalletStatus]int64
}

// ReportingService defines dashboard/reporting business logic.
type ReportingService interface {
	GetDashboardStats(ctx context.Context, businessID uuid.UUID, period string) (*BusinessStats, error)
}

// AuditService records audit entries asynchronously.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}
