package postgres

import (
	"context"
	"errors"
	"fmt"

	"phantom-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const businessColumns = `id, name, email, phone, settlement_account_ref, password_hash, access_key,
		secret_key_enc, status, created_at, updated_at`

// BusinessRepo implements ports.BusinessRepository.
type BusinessRepo struct {
	pool Pool
}

// NewBusinessRepo creates a new BusinessRepo.
func NewBusinessRepo(pool Pool) *BusinessRepo {
	return &BusinessRepo{pool: pool}
}

// Create inserts a new business. A taken email or access key surfaces as ports.ErrUniqueViolation.
func (r *BusinessRepo) Create(ctx context.Context, b *domain.Business) error {
	query := `INSERT INTO businesses (` + businessColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.pool.Exec(ctx, query,
		b.ID, b.Name, b.Email, b.Phone, b.SettlementAccountRef, b.PasswordHash,
		b.AccessKey, b.SecretKeyEnc, b.Status, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return wrapWriteErr("insert business", err)
	}
	return nil
}

// GetByID fetches a business by UUID.
func (r *BusinessRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Business, error) {
	query := `SELECT ` + businessColumns + ` FROM businesses WHERE id = $1`
	return scanBusiness(r.pool.QueryRow(ctx, query, id))
}

// GetByEmail fetches a business by its login email.
func (r *BusinessRepo) GetByEmail(ctx context.Context, email string) (*domain.Business, error) {
	query := `SELECT ` + businessColumns + ` FROM businesses WHERE email = $1`
	return scanBusiness(r.pool.QueryRow(ctx, query, email))
}

// GetByAccessKey fetches a business by its channel API access key.
func (r *BusinessRepo) GetByAccessKey(ctx context.Context, accessKey string) (*domain.Business, error) {
	query := `SELECT ` + businessColumns + ` FROM businesses WHERE access_key = $1`
	return scanBusiness(r.pool.QueryRow(ctx, query, accessKey))
}

func scanBusiness(row pgx.Row) (*domain.Business, error) {
	b := &domain.Business{}
	err := row.Scan(
		&b.ID, &b.Name, &b.Email, &b.Phone, &b.SettlementAccountRef, &b.PasswordHash,
		&b.AccessKey, &b.SecretKeyEnc, &b.Status, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan business: %w", err)
	}
	return b, nil
}
