package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"phantom-ledger/internal/core/domain"
	"phantom-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const transactionColumns = `id, reference, wallet_id, business_id, direction, amount, channel, kind, status,
		linked_transaction_id, balance_after, metadata, settlement_ref, settlement_status, created_at, processed_at`

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create inserts a new transaction within a database transaction.
// A reused reference surfaces as ports.ErrUniqueViolation.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	query := `INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	metadata := t.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	_, err := tx.Exec(ctx, query,
		t.ID, t.Reference, t.WalletID, t.BusinessID, t.Direction, t.Amount, t.Channel, t.Kind, t.Status,
		t.LinkedTransactionID, t.BalanceAfter, metadata, t.SettlementRef, t.SettlementStatus,
		t.CreatedAt, t.ProcessedAt,
	)
	if err != nil {
		return wrapWriteErr("insert transaction", err)
	}
	return nil
}

// GetByID fetches a transaction by UUID.
func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	return scanTransaction(r.pool.QueryRow(ctx, query, id))
}

// GetByReference fetches a transaction by its external reference.
func (r *TransactionRepo) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE reference = $1`
	return scanTransaction(r.pool.QueryRow(ctx, query, reference))
}

// GetByReferenceTx fetches a transaction by reference inside tx.
func (r *TransactionRepo) GetByReferenceTx(ctx context.Context, tx pgx.Tx, reference string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE reference = $1`
	return scanTransaction(tx.QueryRow(ctx, query, reference))
}

// SumCompleted totals completed payment amounts of a wallet in [From, To).
func (r *TransactionRepo) SumCompleted(ctx context.Context, tx pgx.Tx, params ports.UsageParams) (int64, error) {
	directions := make([]string, len(params.Directions))
	for i, d := range params.Directions {
		directions[i] = string(d)
	}

	query := `SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE wallet_id = $1 AND kind = 'payment' AND status = 'completed'
		AND direction = ANY($2) AND created_at >= $3 AND created_at < $4`

	var sum int64
	if err := tx.QueryRow(ctx, query, params.WalletID, directions, params.From, params.To).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum completed transactions: %w", err)
	}
	return sum, nil
}

// List returns transactions newest first, continuing after params.Cursor when set.
func (r *TransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, error) {
	var conditions []string
	var args []any
	argIdx := 1

	add := func(cond string, vals ...any) {
		placeholders := make([]any, len(vals))
		for i := range vals {
			placeholders[i] = argIdx
			argIdx++
		}
		conditions = append(conditions, fmt.Sprintf(cond, placeholders...))
		args = append(args, vals...)
	}

	if params.WalletID != nil {
		add("wallet_id = $%d", *params.WalletID)
	}
	if params.BusinessID != nil {
		add("business_id = $%d", *params.BusinessID)
	}
	if params.Direction != nil {
		add("direction = $%d", *params.Direction)
	}
	if params.Channel != nil {
		add("channel = $%d", *params.Channel)
	}
	if params.Status != nil {
		add("status = $%d", *params.Status)
	}
	if params.From != nil {
		add("created_at >= $%d", *params.From)
	}
	if params.To != nil {
		add("created_at < $%d", *params.To)
	}
	if params.Cursor != nil {
		add("(created_at, id) < ($%d, $%d)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`SELECT %s FROM transactions %s ORDER BY created_at DESC, id DESC LIMIT $%d`,
		transactionColumns, where, argIdx)
	args = append(args, params.Limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return collectTransactions(rows)
}

// UpdateSettlement records the settlement sink's outcome for a transaction.
func (r *TransactionRepo) UpdateSettlement(ctx context.Context, id uuid.UUID, ref *string, status domain.SettlementStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE transactions SET settlement_ref = COALESCE($1, settlement_ref), settlement_status = $2 WHERE id = $3`,
		ref, status, id)
	if err != nil {
		return fmt.Errorf("update transaction settlement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction not found: %s", id)
	}
	return nil
}

// GetStats derives a business's aggregates from its transaction history.
func (r *TransactionRepo) GetStats(ctx context.Context, businessID uuid.UUID, periodStart *time.Time) (*ports.TransactionStats, error) {
	args := []any{businessID}
	condition := "business_id = $1"
	if periodStart != nil {
		condition += " AND created_at >= $2"
		args = append(args, *periodStart)
	}

	query := fmt.Sprintf(`SELECT
		COUNT(*) FILTER (WHERE kind <> 'fee') AS total,
		COUNT(*) FILTER (WHERE kind <> 'fee' AND status = 'completed') AS completed,
		COUNT(*) FILTER (WHERE kind <> 'fee' AND status = 'failed') AS failed,
		COALESCE(SUM(amount) FILTER (WHERE kind = 'payment' AND direction = 'credit' AND status = 'completed'), 0) AS credits,
		COALESCE(SUM(amount) FILTER (WHERE kind = 'payment' AND direction = 'debit' AND status = 'completed'), 0) AS debits,
		COALESCE(SUM(amount) FILTER (WHERE kind = 'fee' AND status = 'completed'), 0) AS fees
		FROM transactions WHERE %s`, condition)

	stats := &ports.TransactionStats{}
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&stats.TotalTransactions, &stats.Completed, &stats.Failed,
		&stats.CreditVolume, &stats.DebitVolume, &stats.FeeVolume,
	)
	if err != nil {
		return nil, fmt.Errorf("get transaction stats: %w", err)
	}
	return stats, nil
}

// Reconcile lists wallets whose stored balance differs from the sum of their completed entries.
func (r *TransactionRepo) Reconcile(ctx context.Context) ([]ports.BalanceMismatch, error) {
	query := `SELECT w.id, w.balance, COALESCE(SUM(CASE WHEN t.direction = 'credit' THEN t.amount ELSE -t.amount END), 0) AS derived
		FROM wallets w
		LEFT JOIN transactions t ON t.wallet_id = w.id AND t.status = 'completed'
		GROUP BY w.id, w.balance
		HAVING w.balance <> COALESCE(SUM(CASE WHEN t.direction = 'credit' THEN t.amount ELSE -t.amount END), 0)
		ORDER BY w.id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("reconcile balances: %w", err)
	}
	defer rows.Close()

	var mismatches []ports.BalanceMismatch
	for rows.Next() {
		var m ports.BalanceMismatch
		if err := rows.Scan(&m.WalletID, &m.Stored, &m.Derived); err != nil {
			return nil, fmt.Errorf("scan reconcile row: %w", err)
		}
		mismatches = append(mismatches, m)
	}
	return mismatches, rows.Err()
}

// scanTransaction is a helper to scan a single row into a Transaction.
func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	err := row.Scan(
		&t.ID, &t.Reference, &t.WalletID, &t.BusinessID, &t.Direction, &t.Amount, &t.Channel, &t.Kind, &t.Status,
		&t.LinkedTransactionID, &t.BalanceAfter, &t.Metadata, &t.SettlementRef, &t.SettlementStatus,
		&t.CreatedAt, &t.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	return t, nil
}

func collectTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, nil
}
