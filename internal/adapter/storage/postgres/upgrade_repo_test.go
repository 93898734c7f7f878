package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"phantom-ledger/internal/core/domain"
	"phantom-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorkflow() *domain.UpgradeWorkflow {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.UpgradeWorkflow{
		ID:         uuid.New(),
		WalletID:   uuid.New(),
		BusinessID: uuid.New(),
		State:      domain.UpgradeStateRequested,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func workflowRows(workflows ...*domain.UpgradeWorkflow) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{"id", "wallet_id", "business_id", "state", "account_ref", "transfer_ref",
		"transfer_amount", "frozen", "attempts", "alert", "last_error", "created_at", "updated_at", "completed_at"})
	for _, w := range workflows {
		rows.AddRow(w.ID, w.WalletID, w.BusinessID, w.State, w.AccountRef, w.TransferRef,
			w.TransferAmount, w.Frozen, w.Attempts, w.Alert, w.LastError, w.CreatedAt, w.UpdatedAt, w.CompletedAt)
	}
	return rows
}

func TestUpgradeRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUpgradeRepo(mock)
	w := newTestWorkflow()

	mock.ExpectExec("INSERT INTO upgrade_workflows").
		WithArgs(w.ID, w.WalletID, w.BusinessID, w.State, w.AccountRef, w.TransferRef, w.TransferAmount, w.Frozen,
			w.Attempts, w.Alert, w.LastError, w.CreatedAt, w.UpdatedAt, w.CompletedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, repo.Create(context.Background(), w))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpgradeRepo_CreateTx(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUpgradeRepo(mock)
	w := newTestWorkflow()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO upgrade_workflows").
		WithArgs(w.ID, w.WalletID, w.BusinessID, w.State, w.AccountRef, w.TransferRef, w.TransferAmount, w.Frozen,
			w.Attempts, w.Alert, w.LastError, w.CreatedAt, w.UpdatedAt, w.CompletedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.CreateTx(context.Background(), tx, w))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpgradeRepo_Create_SecondOpenWorkflow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUpgradeRepo(mock)

	mock.ExpectExec("INSERT INTO upgrade_workflows").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_upgrade_open_per_wallet"})

	err = repo.Create(context.Background(), newTestWorkflow())
	assert.True(t, errors.Is(err, ports.ErrUniqueViolation))
}

func TestUpgradeRepo_GetOpenByWallet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUpgradeRepo(mock)
	w := newTestWorkflow()
	w.State = domain.UpgradeStateKYCPending

	mock.ExpectQuery("FROM upgrade_workflows WHERE wallet_id = \\$1 AND state <> 'upgraded'").
		WithArgs(w.WalletID).
		WillReturnRows(workflowRows(w))

	result, err := repo.GetOpenByWallet(context.Background(), w.WalletID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, domain.UpgradeStateKYCPending, result.State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpgradeRepo_UpdateTx(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUpgradeRepo(mock)
	w := newTestWorkflow()
	w.State = domain.UpgradeStateUpgraded

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE upgrade_workflows").
		WithArgs(w.State, w.AccountRef, w.TransferRef, w.TransferAmount, w.Frozen,
			w.Attempts, w.Alert, w.LastError, pgxmock.AnyArg(), w.CompletedAt, w.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.UpdateTx(context.Background(), tx, w))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpgradeRepo_Update_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUpgradeRepo(mock)

	mock.ExpectExec("UPDATE upgrade_workflows").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.Update(context.Background(), newTestWorkflow())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestUpgradeRepo_ListOpen(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUpgradeRepo(mock)
	cutoff := time.Now().UTC().Truncate(time.Microsecond)
	w1, w2 := newTestWorkflow(), newTestWorkflow()

	mock.ExpectQuery("WHERE state <> 'upgraded' AND updated_at <= \\$1").
		WithArgs(cutoff, 25).
		WillReturnRows(workflowRows(w1, w2))

	result, err := repo.ListOpen(context.Background(), cutoff, 25)
	require.NoError(t, err)
	assert.Len(t, result, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
