package postgres

import (
	"context"
	"fmt"
	"time"

	"phantom-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const settlementColumns = `id, transaction_id, business_id, payload, attempt, status, settlement_ref,
		next_retry_at, last_error, created_at, updated_at`

// SettlementRepo implements ports.SettlementRepository (the settlement outbox).
type SettlementRepo struct {
	pool Pool
}

// NewSettlementRepo creates a new SettlementRepo.
func NewSettlementRepo(pool Pool) *SettlementRepo {
	return &SettlementRepo{pool: pool}
}

func (r *SettlementRepo) Create(ctx context.Context, d *domain.SettlementDelivery) error {
	query := `INSERT INTO settlement_deliveries (` + settlementColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.pool.Exec(ctx, query,
		d.ID, d.TransactionID, d.BusinessID, d.Payload, d.Attempt, d.Status, d.SettlementRef,
		d.NextRetryAt, d.LastError, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return wrapWriteErr("insert settlement delivery", err)
	}
	return nil
}

func (r *SettlementRepo) Update(ctx context.Context, d *domain.SettlementDelivery) error {
	d.UpdatedAt = time.Now().UTC()
	query := `UPDATE settlement_deliveries
		SET attempt = $1, status = $2, settlement_ref = $3, next_retry_at = $4, last_error = $5, updated_at = $6
		WHERE id = $7`

	_, err := r.pool.Exec(ctx, query,
		d.Attempt, d.Status, d.SettlementRef, d.NextRetryAt, d.LastError, d.UpdatedAt, d.ID,
	)
	if err != nil {
		return fmt.Errorf("update settlement delivery: %w", err)
	}
	return nil
}

// ListDue returns undelivered entries whose retry time has passed.
func (r *SettlementRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.SettlementDelivery, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlement_deliveries
		WHERE status <> 'delivered' AND next_retry_at <= $1
		ORDER BY next_retry_at LIMIT $2`

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due settlements: %w", err)
	}
	return collectDeliveries(rows)
}

// ListUnqueued returns payments still awaiting settlement that never got an
// outbox row, oldest first.
func (r *SettlementRepo) ListUnqueued(ctx context.Context, cutoff time.Time, limit int) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions t
		WHERE t.settlement_status = 'pending' AND t.created_at <= $1
		AND NOT EXISTS (SELECT 1 FROM settlement_deliveries d WHERE d.transaction_id = t.id)
		ORDER BY t.created_at LIMIT $2`

	rows, err := r.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list unqueued settlements: %w", err)
	}
	return collectTransactions(rows)
}

func (r *SettlementRepo) GetByTransactionID(ctx context.Context, txID uuid.UUID) ([]domain.SettlementDelivery, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlement_deliveries
		WHERE transaction_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, txID)
	if err != nil {
		return nil, fmt.Errorf("get settlements by transaction: %w", err)
	}
	return collectDeliveries(rows)
}

func collectDeliveries(rows pgx.Rows) ([]domain.SettlementDelivery, error) {
	defer rows.Close()

	var deliveries []domain.SettlementDelivery
	for rows.Next() {
		var d domain.SettlementDelivery
		if err := rows.Scan(
			&d.ID, &d.TransactionID, &d.BusinessID, &d.Payload, &d.Attempt, &d.Status, &d.SettlementRef,
			&d.NextRetryAt, &d.LastError, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan settlement delivery: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}
