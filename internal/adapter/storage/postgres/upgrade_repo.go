package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"phantom-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const upgradeColumns = `id, wallet_id, business_id, state, account_ref, transfer_ref, transfer_amount, frozen,
		attempts, alert, last_error, created_at, updated_at, completed_at`

// UpgradeRepo implements ports.UpgradeRepository.
type UpgradeRepo struct {
	pool Pool
}

// NewUpgradeRepo creates a new UpgradeRepo.
func NewUpgradeRepo(pool Pool) *UpgradeRepo {
	return &UpgradeRepo{pool: pool}
}

// Create inserts a workflow. A second open workflow for the same wallet
// surfaces as ports.ErrUniqueViolation.
func (r *UpgradeRepo) Create(ctx context.Context, w *domain.UpgradeWorkflow) error {
	return r.create(ctx, r.pool, w)
}

// CreateTx inserts the workflow inside tx.
func (r *UpgradeRepo) CreateTx(ctx context.Context, tx pgx.Tx, w *domain.UpgradeWorkflow) error {
	return r.create(ctx, tx, w)
}

func (r *UpgradeRepo) create(ctx context.Context, db execer, w *domain.UpgradeWorkflow) error {
	query := `INSERT INTO upgrade_workflows (` + upgradeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := db.Exec(ctx, query,
		w.ID, w.WalletID, w.BusinessID, w.State, w.AccountRef, w.TransferRef, w.TransferAmount, w.Frozen,
		w.Attempts, w.Alert, w.LastError, w.CreatedAt, w.UpdatedAt, w.CompletedAt,
	)
	if err != nil {
		return wrapWriteErr("insert upgrade workflow", err)
	}
	return nil
}

// GetByID fetches a workflow by UUID.
func (r *UpgradeRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.UpgradeWorkflow, error) {
	query := `SELECT ` + upgradeColumns + ` FROM upgrade_workflows WHERE id = $1`
	return scanUpgrade(r.pool.QueryRow(ctx, query, id))
}

// GetOpenByWallet fetches the wallet's non-terminal workflow, if any.
func (r *UpgradeRepo) GetOpenByWallet(ctx context.Context, walletID uuid.UUID) (*domain.UpgradeWorkflow, error) {
	query := `SELECT ` + upgradeColumns + ` FROM upgrade_workflows WHERE wallet_id = $1 AND state <> 'upgraded'`
	return scanUpgrade(r.pool.QueryRow(ctx, query, walletID))
}

// Update persists the workflow's mutable fields.
func (r *UpgradeRepo) Update(ctx context.Context, w *domain.UpgradeWorkflow) error {
	return r.update(ctx, r.pool, w)
}

// UpdateTx persists the workflow inside a ledger transaction.
func (r *UpgradeRepo) UpdateTx(ctx context.Context, tx pgx.Tx, w *domain.UpgradeWorkflow) error {
	return r.update(ctx, tx, w)
}

func (r *UpgradeRepo) update(ctx context.Context, db execer, w *domain.UpgradeWorkflow) error {
	w.UpdatedAt = time.Now().UTC()
	query := `UPDATE upgrade_workflows
		SET state = $1, account_ref = $2, transfer_ref = $3, transfer_amount = $4, frozen = $5,
		attempts = $6, alert = $7, last_error = $8, updated_at = $9, completed_at = $10
		WHERE id = $11`

	tag, err := db.Exec(ctx, query,
		w.State, w.AccountRef, w.TransferRef, w.TransferAmount, w.Frozen,
		w.Attempts, w.Alert, w.LastError, w.UpdatedAt, w.CompletedAt, w.ID,
	)
	if err != nil {
		return fmt.Errorf("update upgrade workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("upgrade workflow not found: %s", w.ID)
	}
	return nil
}

// ListOpen returns non-terminal workflows untouched since updatedBefore, oldest first.
func (r *UpgradeRepo) ListOpen(ctx context.Context, updatedBefore time.Time, limit int) ([]domain.UpgradeWorkflow, error) {
	query := `SELECT ` + upgradeColumns + ` FROM upgrade_workflows
		WHERE state <> 'upgraded' AND updated_at <= $1
		ORDER BY updated_at LIMIT $2`

	rows, err := r.pool.Query(ctx, query, updatedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list open upgrade workflows: %w", err)
	}
	defer rows.Close()

	var workflows []domain.UpgradeWorkflow
	for rows.Next() {
		w, err := scanUpgrade(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, *w)
	}
	return workflows, rows.Err()
}

func scanUpgrade(row pgx.Row) (*domain.UpgradeWorkflow, error) {
	w := &domain.UpgradeWorkflow{}
	err := row.Scan(
		&w.ID, &w.WalletID, &w.BusinessID, &w.State, &w.AccountRef, &w.TransferRef, &w.TransferAmount, &w.Frozen,
		&w.Attempts, &w.Alert, &w.LastError, &w.CreatedAt, &w.UpdatedAt, &w.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan upgrade workflow: %w", err)
	}
	return w, nil
}
