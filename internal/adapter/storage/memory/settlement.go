package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"phantom-ledger/internal/core/domain"
	"phantom-ledger/internal/core/ports"

	"github.com/google/uuid"
)

// SettlementRepo implements ports.SettlementRepository.
type SettlementRepo struct {
	store *Store
}

// NewSettlementRepo creates a SettlementRepo over s.
func NewSettlementRepo(s *Store) *SettlementRepo {
	return &SettlementRepo{store: s}
}

func (r *SettlementRepo) Create(ctx context.Context, d *domain.SettlementDelivery) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.deliveries[d.ID]; ok {
		return fmt.Errorf("insert settlement delivery: %w", ports.ErrUniqueViolation)
	}
	c := *d
	r.store.deliveries[d.ID] = &c
	return nil
}

func (r *SettlementRepo) Update(ctx context.Context, d *domain.SettlementDelivery) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.deliveries[d.ID]; !ok {
		return fmt.Errorf("settlement delivery not found: %s", d.ID)
	}
	d.UpdatedAt = timeNow()
	c := *d
	r.store.deliveries[d.ID] = &c
	return nil
}

func (r *SettlementRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.SettlementDelivery, error) {
	r.store.mu.RLock()
	var due []domain.SettlementDelivery
	for _, d := range r.store.deliveries {
		if d.Status != domain.DeliveryStatusDelivered && d.NextRetryAt != nil && !d.NextRetryAt.After(now) {
			due = append(due, *d)
		}
	}
	r.store.mu.RUnlock()

	slices.SortFunc(due, func(a, b domain.SettlementDelivery) int {
		return a.NextRetryAt.Compare(*b.NextRetryAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// ListUnqueued returns pending-settlement transactions with no delivery row.
func (r *SettlementRepo) ListUnqueued(ctx context.Context, cutoff time.Time, limit int) ([]domain.Transaction, error) {
	r.store.mu.RLock()
	queued := make(map[uuid.UUID]bool, len(r.store.deliveries))
	for _, d := range r.store.deliveries {
		queued[d.TransactionID] = true
	}
	var out []domain.Transaction
	for _, t := range r.store.transactions {
		if t.SettlementStatus == domain.SettlementStatusPending && !queued[t.ID] && !t.CreatedAt.After(cutoff) {
			out = append(out, *cloneTransaction(t))
		}
	}
	r.store.mu.RUnlock()

	slices.SortFunc(out, func(a, b domain.Transaction) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *SettlementRepo) GetByTransactionID(ctx context.Context, txID uuid.UUID) ([]domain.SettlementDelivery, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []domain.SettlementDelivery
	for _, d := range r.store.deliveries {
		if d.TransactionID == txID {
			out = append(out, *d)
		}
	}
	slices.SortFunc(out, func(a, b domain.SettlementDelivery) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// IdempotencyRepo implements ports.IdempotencyRepository.
type IdempotencyRepo struct {
	store *Store
}

// NewIdempotencyRepo creates an IdempotencyRepo over s.
func NewIdempotencyRepo(s *Store) *IdempotencyRepo {
	return &IdempotencyRepo{store: s}
}

// Save keeps the first log written for a key.
func (r *IdempotencyRepo) Save(ctx context.Context, log *domain.IdempotencyLog) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.idempotency[log.Key]; ok {
		return nil
	}
	c := *log
	r.store.idempotency[log.Key] = &c
	return nil
}

func (r *IdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyLog, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	l, ok := r.store.idempotency[key]
	if !ok {
		return nil, nil
	}
	c := *l
	return &c, nil
}

// AuditRepo implements ports.AuditRepository.
type AuditRepo struct {
	store *Store
}

// NewAuditRepo creates an AuditRepo over s.
func NewAuditRepo(s *Store) *AuditRepo {
	return &AuditRepo{store: s}
}

func (r *AuditRepo) Create(ctx context.Context, log *domain.AuditLog) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.audit = append(r.store.audit, *log)
	return nil
}
