package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"phantom-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

const idempotencyColumns = `key, resource_id, response_json, created_at`

// IdempotencyRepo keeps the result of each completed upgrade step, keyed by
// workflow and step, so a resumed workflow reuses the bank's first answer.
type IdempotencyRepo struct {
	pool Pool
}

// NewIdempotencyRepo creates a new IdempotencyRepo.
func NewIdempotencyRepo(pool Pool) *IdempotencyRepo {
	return &IdempotencyRepo{pool: pool}
}

// Save records a step result. Later writes for the same key are ignored.
func (r *IdempotencyRepo) Save(ctx context.Context, log *domain.IdempotencyLog) error {
	if log.Key == "" {
		return errors.New("idempotency log has no key")
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO idempotency_logs (`+idempotencyColumns+`) VALUES ($1, $2, $3, $4) ON CONFLICT (key) DO NOTHING`,
		log.Key, log.ResourceID, log.ResponseJSON, log.CreatedAt,
	)
	if err != nil {
		return wrapWriteErr("save step result", err)
	}
	return nil
}

// Get returns the recorded step result, or nil if the step never completed.
func (r *IdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyLog, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+idempotencyColumns+` FROM idempotency_logs WHERE key = $1`, key)
	return scanStepResult(row)
}

func scanStepResult(row pgx.Row) (*domain.IdempotencyLog, error) {
	var l domain.IdempotencyLog
	switch err := row.Scan(&l.Key, &l.ResourceID, &l.ResponseJSON, &l.CreatedAt); {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("load step result: %w", err)
	}
	return &l, nil
}
