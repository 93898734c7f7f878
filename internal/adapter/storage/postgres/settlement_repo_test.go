package postgres

import (
	"context"
	"testing"
	"time"

	"phantom-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDelivery() *domain.SettlementDelivery {
	now := time.Now().UTC().Truncate(time.Microsecond)
	next := now.Add(30 * time.Second)
	return &domain.SettlementDelivery{
		ID:            uuid.New(),
		TransactionID: uuid.New(),
		BusinessID:    uuid.New(),
		Payload:       `{"reference":"QR-1"}`,
		Status:        domain.DeliveryStatusPending,
		NextRetryAt:   &next,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func deliveryRows(ds ...*domain.SettlementDelivery) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{"id", "transaction_id", "business_id", "payload", "attempt", "status",
		"settlement_ref", "next_retry_at", "last_error", "created_at", "updated_at"})
	for _, d := range ds {
		rows.AddRow(d.ID, d.TransactionID, d.BusinessID, d.Payload, d.Attempt, d.Status,
			d.SettlementRef, d.NextRetryAt, d.LastError, d.CreatedAt, d.UpdatedAt)
	}
	return rows
}

func TestSettlementRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewSettlementRepo(mock)
	d := newTestDelivery()

	mock.ExpectExec("INSERT INTO settlement_deliveries").
		WithArgs(d.ID, d.TransactionID, d.BusinessID, d.Payload, d.Attempt, d.Status, d.SettlementRef,
			d.NextRetryAt, d.LastError, d.CreatedAt, d.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, repo.Create(context.Background(), d))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlementRepo_Update(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewSettlementRepo(mock)
	d := newTestDelivery()
	d.Attempt = 3
	d.Status = domain.DeliveryStatusDelivered

	mock.ExpectExec("UPDATE settlement_deliveries").
		WithArgs(3, domain.DeliveryStatusDelivered, d.SettlementRef, d.NextRetryAt, d.LastError, pgxmock.AnyArg(), d.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	assert.NoError(t, repo.Update(context.Background(), d))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlementRepo_ListDue(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewSettlementRepo(mock)
	now := time.Now().UTC().Truncate(time.Microsecond)
	d := newTestDelivery()

	mock.ExpectQuery("WHERE status <> 'delivered' AND next_retry_at <= \\$1").
		WithArgs(now, 100).
		WillReturnRows(deliveryRows(d))

	result, err := repo.ListDue(context.Background(), now, 100)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, d.ID, result[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlementRepo_GetByTransactionID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewSettlementRepo(mock)
	d := newTestDelivery()

	mock.ExpectQuery("FROM settlement_deliveries").
		WithArgs(d.TransactionID).
		WillReturnRows(deliveryRows(d))

	result, err := repo.GetByTransactionID(context.Background(), d.TransactionID)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, `{"reference":"QR-1"}`, result[0].Payload)
}

func TestSettlementRepo_ListUnqueued(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewSettlementRepo(mock)
	cutoff := time.Now().UTC().Add(-5 * time.Minute).Truncate(time.Microsecond)
	txn := newTestTransaction(uuid.New(), uuid.New())

	mock.ExpectQuery("NOT EXISTS \\(SELECT 1 FROM settlement_deliveries d WHERE d.transaction_id = t.id\\)").
		WithArgs(cutoff, 50).
		WillReturnRows(transactionRow(pgxmock.NewRows(transactionRowColumns()), txn))

	result, err := repo.ListUnqueued(context.Background(), cutoff, 50)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, txn.Reference, result[0].Reference)
	assert.NoError(t, mock.ExpectationsWereMet())
}
