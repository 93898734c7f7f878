package dto

// RegisterRequest is the request body for business registration.
type RegisterRequest struct {
	Name                 string `json:"name" binding:"required,min=1,max=100"`
	Email                string `json:"email" binding:"required,email,max=254"`
	Phone                string `json:"phone" binding:"required,phone"`
	Password             string `json:"password" binding:"required,min=8,max=128" sanitize:"-"`
	SettlementAccountRef string `json:"settlement_account_ref" binding:"required,safe_id,max=64"`
}

// LoginRequest is the request body for business login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required" sanitize:"-"`
}

// RegisterResponse is returned once; the secret key is never shown again.
type RegisterResponse struct {
	BusinessID string `json:"business_id"`
	AccessKey  string `json:"access_key"`
	SecretKey  string `json:"secret_key"`
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// CreateWalletRequest opens a wallet for one of the business's customers.
// Limits are major-unit decimal strings; omitted limits take the configured defaults.
type CreateWalletRequest struct {
	CustomerName  string  `json:"customer_name" binding:"required,min=1,max=100"`
	CustomerPhone string  `json:"customer_phone" binding:"required,phone"`
	CustomerEmail *string `json:"customer_email,omitempty" binding:"omitempty,email"`
	DailyLimit    *string `json:"daily_limit,omitempty" binding:"omitempty,amount"`
	MonthlyLimit  *string `json:"monthly_limit,omitempty" binding:"omitempty,amount"`
}

// UpdateLimitsRequest changes one or both caps. "0" removes a cap.
type UpdateLimitsRequest struct {
	DailyLimit   *string `json:"daily_limit,omitempty" binding:"omitempty,amount"`
	MonthlyLimit *string `json:"monthly_limit,omitempty" binding:"omitempty,amount"`
}

// ChangeStatusRequest suspends, resumes or closes a wallet.
type ChangeStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=active suspended closed"`
}

// WalletResponse is the public view of a wallet.
type WalletResponse struct {
	ID               string  `json:"id"`
	CustomerName     string  `json:"customer_name"`
	CustomerPhone    string  `json:"customer_phone"`
	CustomerEmail    *string `json:"customer_email,omitempty"`
	Balance          string  `json:"balance"`
	Currency         string  `json:"currency"`
	DailyLimit       string  `json:"daily_limit"`
	MonthlyLimit     string  `json:"monthly_limit"`
	Status           string  `json:"status"`
	AccessToken      string  `json:"access_token"`
	LinkedAccountRef *string `json:"linked_account_ref,omitempty"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
}

// WalletListResponse wraps a paginated wallet list.
type WalletListResponse struct {
	Items      []WalletResponse `json:"items"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalPages int              `json:"total_pages"`
}

// WalletBalanceResponse is the response for balance query.
type WalletBalanceResponse struct {
	WalletID string `json:"wallet_id"`
	Balance  string `json:"balance"`
	Currency string `json:"currency"`
}

// ChannelPaymentRequest is submitted by channel adapters. The wallet is
// identified by id, by access token, or by both (which must then agree).
type ChannelPaymentRequest struct {
	Channel     string            `json:"channel" binding:"required,channel"`
	WalletID    *string           `json:"wallet_id,omitempty" binding:"omitempty,uuid"`
	AccessToken string            `json:"access_token,omitempty" binding:"omitempty,access_token"`
	Direction   string            `json:"direction" binding:"required,oneof=credit debit"`
	Amount      string            `json:"amount" binding:"required,amount"`
	Reference   string            `json:"reference" binding:"required,reference"`
	Metadata    map[string]string `json:"metadata,omitempty" binding:"omitempty,max=20"`
}

// FundsRequest is a business-initiated top-up or payout on one wallet.
type FundsRequest struct {
	Amount    string            `json:"amount" binding:"required,amount"`
	Reference string            `json:"reference" binding:"required,reference"`
	Channel   string            `json:"channel,omitempty" binding:"omitempty,oneof=phantom_wallet eft"`
	Metadata  map[string]string `json:"metadata,omitempty" binding:"omitempty,max=20"`
}

// TransferRequest moves funds between two wallets of the same business.
type TransferRequest struct {
	FromWalletID string            `json:"from_wallet_id" binding:"required,uuid"`
	ToWalletID   string            `json:"to_wallet_id" binding:"required,uuid,nefield=FromWalletID"`
	Amount       string            `json:"amount" binding:"required,amount"`
	Reference    string            `json:"reference" binding:"required,reference"`
	Metadata     map[string]string `json:"metadata,omitempty" binding:"omitempty,max=20"`
}

// TransactionResponse is the public view of a ledger entry.
type TransactionResponse struct {
	ID               string            `json:"id"`
	Reference        string            `json:"reference"`
	WalletID         string            `json:"wallet_id"`
	Direction        string            `json:"direction"`
	Amount           string            `json:"amount"`
	Channel          string            `json:"channel"`
	Kind             string            `json:"kind"`
	Status           string            `json:"status"`
	BalanceAfter     string            `json:"balance_after"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	SettlementStatus string            `json:"settlement_status"`
	CreatedAt        string            `json:"created_at"`
	ProcessedAt      *string           `json:"processed_at,omitempty"`
}

// PaymentResponse reports an applied payment. Replayed is true when the
// reference had already been applied and the stored outcome is returned.
type PaymentResponse struct {
	Transaction      TransactionResponse  `json:"transaction"`
	Fee              *TransactionResponse `json:"fee,omitempty"`
	Balance          string               `json:"balance"`
	Replayed         bool                 `json:"replayed"`
	SettlementQueued bool                 `json:"settlement_queued"`
}

// TransferResponse holds both legs of a transfer.
type TransferResponse struct {
	Debit  PaymentResponse `json:"debit"`
	Credit PaymentResponse `json:"credit"`
}

// HistoryResponse is one cursor page of wallet history, newest first.
type HistoryResponse struct {
	Items      []TransactionResponse `json:"items"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

// UpgradeResponse is the public view of an upgrade workflow.
type UpgradeResponse struct {
	ID             string  `json:"id"`
	WalletID       string  `json:"wallet_id"`
	State          string  `json:"state"`
	AccountRef     *string `json:"account_ref,omitempty"`
	TransferRef    *string `json:"transfer_ref,omitempty"`
	TransferAmount *string `json:"transfer_amount,omitempty"`
	Frozen         bool    `json:"frozen"`
	Alert          bool    `json:"alert"`
	LastError      *string `json:"last_error,omitempty"`
	Attempts       int     `json:"attempts"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
	CompletedAt    *string `json:"completed_at,omitempty"`
}

// KYCWebhookRequest is the KYC provider's verification callback.
type KYCWebhookRequest struct {
	CustomerRef string `json:"customer_ref" binding:"required,max=64"`
	Status      string `json:"status" binding:"required"`
}

// DashboardStatsResponse is the response for dashboard statistics.
type DashboardStatsResponse struct {
	Period            string           `json:"period"`
	TotalTransactions int64            `json:"total_transactions"`
	Completed         int64            `json:"completed"`
	Failed            int64            `json:"failed"`
	CreditVolume      string           `json:"credit_volume"`
	DebitVolume       string           `json:"debit_volume"`
	FeeVolume         string           `json:"fee_volume"`
	WalletsByStatus   map[string]int64 `json:"wallets_by_status"`
}
