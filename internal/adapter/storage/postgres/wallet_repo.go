package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"phantom-ledger/internal/core/domain"
	"phantom-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const walletColumns = `id, business_id, customer_name, customer_phone, customer_email, balance, currency,
		daily_limit, monthly_limit, status, access_token, linked_account_ref, created_at, updated_at`

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// Create inserts a new wallet. A taken access token surfaces as ports.ErrUniqueViolation.
func (r *WalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	query := `INSERT INTO wallets (` + walletColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.pool.Exec(ctx, query,
		w.ID, w.BusinessID, w.CustomerName, w.CustomerPhone, w.CustomerEmail,
		w.Balance, w.Currency, w.DailyLimit, w.MonthlyLimit, w.Status,
		w.AccessToken, w.LinkedAccountRef, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return wrapWriteErr("insert wallet", err)
	}
	return nil
}

// GetByID fetches a wallet by its UUID (without locking).
func (r *WalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1`
	return scanWallet(r.pool.QueryRow(ctx, query, id), "get wallet by id")
}

// GetByAccessToken resolves a customer's dial code to their wallet.
func (r *WalletRepo) GetByAccessToken(ctx context.Context, accessToken string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE access_token = $1`
	return scanWallet(r.pool.QueryRow(ctx, query, accessToken), "get wallet by access token")
}

// GetByIDForUpdate fetches a wallet by ID with pessimistic locking.
// This MUST be called within a transaction.
func (r *WalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1 FOR UPDATE`
	return scanWallet(tx.QueryRow(ctx, query, id), "get wallet for update")
}

// List fetches a business's wallets, newest first.
func (r *WalletRepo) List(ctx context.Context, params ports.WalletListParams) ([]domain.Wallet, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("business_id = $%d", argIdx))
	args = append(args, params.BusinessID)
	argIdx++

	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *params.Status)
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM wallets "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count wallets: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT %s FROM wallets %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		walletColumns, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []domain.Wallet
	for rows.Next() {
		w, err := scanWallet(rows, "scan wallet row")
		if err != nil {
			return nil, 0, err
		}
		wallets = append(wallets, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate wallet rows: %w", err)
	}
	return wallets, total, nil
}

// CountByStatus groups a business's wallets by status.
func (r *WalletRepo) CountByStatus(ctx context.Context, businessID uuid.UUID) (map[domain.WalletStatus]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM wallets WHERE business_id = $1 GROUP BY status`, businessID)
	if err != nil {
		return nil, fmt.Errorf("count wallets by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.WalletStatus]int64)
	for rows.Next() {
		var status domain.WalletStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan wallet count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// UpdateBalance sets a wallet's balance within a transaction.
func (r *WalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance int64) error {
	tag, err := tx.Exec(ctx, `UPDATE wallets SET balance = $1, updated_at = NOW() WHERE id = $2`, balance, walletID)
	if err != nil {
		return fmt.Errorf("update wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", walletID)
	}
	return nil
}

// UpdateStatus changes the status; a nil linkedAccountRef keeps the stored one.
func (r *WalletRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, status domain.WalletStatus, linkedAccountRef *string) error {
	query := `UPDATE wallets SET status = $1, linked_account_ref = COALESCE($2, linked_account_ref), updated_at = NOW()
		WHERE id = $3`

	tag, err := tx.Exec(ctx, query, status, linkedAccountRef, walletID)
	if err != nil {
		return fmt.Errorf("update wallet status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", walletID)
	}
	return nil
}

// UpdateLimits replaces the daily and monthly caps.
func (r *WalletRepo) UpdateLimits(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, dailyLimit, monthlyLimit int64) error {
	query := `UPDATE wallets SET daily_limit = $1, monthly_limit = $2, updated_at = NOW() WHERE id = $3`

	tag, err := tx.Exec(ctx, query, dailyLimit, monthlyLimit, walletID)
	if err != nil {
		return fmt.Errorf("update wallet limits: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", walletID)
	}
	return nil
}

func scanWallet(row pgx.Row, op string) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	err := row.Scan(
		&w.ID, &w.BusinessID, &w.CustomerName, &w.CustomerPhone, &w.CustomerEmail,
		&w.Balance, &w.Currency, &w.DailyLimit, &w.MonthlyLimit, &w.Status,
		&w.AccessToken, &w.LinkedAccountRef, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return w, nil
}
