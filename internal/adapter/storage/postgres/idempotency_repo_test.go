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

func TestIdempotencyRepo_Save(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock)
	log := &domain.IdempotencyLog{
		Key:          domain.BuildIdempotencyKey(uuid.New(), "create-account"),
		ResourceID:   uuid.New(),
		ResponseJSON: []byte(`"ACC-1001"`),
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}

	mock.ExpectExec("ON CONFLICT \\(key\\) DO NOTHING").
		WithArgs(log.Key, log.ResourceID, log.ResponseJSON, log.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Save(context.Background(), log)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock)
	key := "wf-id:transfer-in"
	resourceID := uuid.New()
	created := time.Now().UTC().Truncate(time.Microsecond)

	mock.ExpectQuery("SELECT .+ FROM idempotency_logs WHERE key").
		WithArgs(key).
		WillReturnRows(pgxmock.NewRows([]string{"key", "resource_id", "response_json", "created_at"}).
			AddRow(key, resourceID, []byte(`"TRF-77"`), created))

	result, err := repo.Get(context.Background(), key)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, resourceID, result.ResourceID)
	assert.Equal(t, []byte(`"TRF-77"`), result.ResponseJSON)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_Get_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM idempotency_logs WHERE key").
		WithArgs("nonexistent").
		WillReturnRows(pgxmock.NewRows([]string{"key", "resource_id", "response_json", "created_at"}))

	result, err := repo.Get(context.Background(), "nonexistent")
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestIdempotencyRepo_Save_RequiresKey(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	err = NewIdempotencyRepo(mock).Save(context.Background(), &domain.IdempotencyLog{ResourceID: uuid.New()})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAuditRepo(mock)
	businessID := uuid.New()
	entry := &domain.AuditLog{
		ID:           uuid.New(),
		BusinessID:   &businessID,
		Action:       domain.AuditActionPayment,
		ResourceType: "transaction",
		ResourceID:   "QR-1",
		Details:      `{"amount":1500}`,
		IPAddress:    "10.0.0.1",
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}

	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(entry.ID, entry.BusinessID, entry.Action, entry.ResourceType,
			entry.ResourceID, entry.Details, entry.IPAddress, entry.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, repo.Create(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}
