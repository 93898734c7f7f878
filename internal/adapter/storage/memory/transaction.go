package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"phantom-ledger/internal/core/domain"
	"phantom-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var timeNow = func() time.Time { return time.Now().UTC() }

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	store *Store
}

// NewTransactionRepo creates a TransactionRepo over s.
func NewTransactionRepo(s *Store) *TransactionRepo {
	return &TransactionRepo{store: s}
}

// Create buffers t in tx. References already committed or pending in tx are rejected.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	mt, err := asMemTx(tx)
	if err != nil {
		return err
	}
	if mt.pendingByReference(t.Reference) != nil {
		return fmt.Errorf("insert transaction: %w", ports.ErrUniqueViolation)
	}
	r.store.mu.RLock()
	_, taken := r.store.byReference[t.Reference]
	r.store.mu.RUnlock()
	if taken {
		return fmt.Errorf("insert transaction: %w", ports.ErrUniqueViolation)
	}
	mt.transactions = append(mt.transactions, cloneTransaction(t))
	return nil
}

func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	t, ok := r.store.transactions[id]
	if !ok {
		return nil, nil
	}
	return cloneTransaction(t), nil
}

func (r *TransactionRepo) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	id, ok := r.store.byReference[reference]
	if !ok {
		return nil, nil
	}
	return cloneTransaction(r.store.transactions[id]), nil
}

func (r *TransactionRepo) GetByReferenceTx(ctx context.Context, tx pgx.Tx, reference string) (*domain.Transaction, error) {
	mt, err := asMemTx(tx)
	if err != nil {
		return nil, err
	}
	if t := mt.pendingByReference(reference); t != nil {
		return cloneTransaction(t), nil
	}
	return r.GetByReference(ctx, reference)
}

// SumCompleted totals completed payment amounts, including ones pending in tx.
func (r *TransactionRepo) SumCompleted(ctx context.Context, tx pgx.Tx, params ports.UsageParams) (int64, error) {
	mt, err := asMemTx(tx)
	if err != nil {
		return 0, err
	}
	counts := func(t *domain.Transaction) bool {
		return t.WalletID == params.WalletID &&
			t.Kind == domain.TransactionKindPayment &&
			t.Status == domain.TransactionStatusCompleted &&
			slices.Contains(params.Directions, t.Direction) &&
			!t.CreatedAt.Before(params.From) && t.CreatedAt.Before(params.To)
	}

	var sum int64
	r.store.mu.RLock()
	for _, t := range r.store.transactions {
		if counts(t) {
			sum += t.Amount
		}
	}
	r.store.mu.RUnlock()
	for _, t := range mt.transactions {
		if counts(t) {
			sum += t.Amount
		}
	}
	return sum, nil
}

func (r *TransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, error) {
	r.store.mu.RLock()
	var matched []domain.Transaction
	for _, t := range r.store.transactions {
		if matchesListParams(t, params) {
			matched = append(matched, *cloneTransaction(t))
		}
	}
	r.store.mu.RUnlock()

	slices.SortFunc(matched, func(a, b domain.Transaction) int {
		if before(a, b) {
			return 1
		}
		if before(b, a) {
			return -1
		}
		return 0
	})
	if params.Limit > 0 && len(matched) > params.Limit {
		matched = matched[:params.Limit]
	}
	return matched, nil
}

// before reports whether a sorts before b in (created_at, id) order.
func before(a, b domain.Transaction) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return uuidLess(a.ID, b.ID)
}

func matchesListParams(t *domain.Transaction, p ports.TransactionListParams) bool {
	switch {
	case p.WalletID != nil && t.WalletID != *p.WalletID:
		return false
	case p.BusinessID != nil && t.BusinessID != *p.BusinessID:
		return false
	case p.Direction != nil && t.Direction != *p.Direction:
		return false
	case p.Channel != nil && t.Channel != *p.Channel:
		return false
	case p.Status != nil && t.Status != *p.Status:
		return false
	case p.From != nil && t.CreatedAt.Before(*p.From):
		return false
	case p.To != nil && !t.CreatedAt.Before(*p.To):
		return false
	}
	if p.Cursor != nil {
		return before(*t, domain.Transaction{CreatedAt: p.Cursor.CreatedAt, ID: p.Cursor.ID})
	}
	return true
}

func (r *TransactionRepo) UpdateSettlement(ctx context.Context, id uuid.UUID, ref *string, status domain.SettlementStatus) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	t, ok := r.store.transactions[id]
	if !ok {
		return fmt.Errorf("transaction not found: %s", id)
	}
	if ref != nil {
		t.SettlementRef = ref
	}
	t.SettlementStatus = status
	return nil
}

func (r *TransactionRepo) GetStats(ctx context.Context, businessID uuid.UUID, periodStart *time.Time) (*ports.TransactionStats, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	stats := &ports.TransactionStats{}
	for _, t := range r.store.transactions {
		if t.BusinessID != businessID {
			continue
		}
		if periodStart != nil && t.CreatedAt.Before(*periodStart) {
			continue
		}
		completed := t.Status == domain.TransactionStatusCompleted
		if t.Kind == domain.TransactionKindFee {
			if completed {
				stats.FeeVolume += t.Amount
			}
			continue
		}
		stats.TotalTransactions++
		switch t.Status {
		case domain.TransactionStatusCompleted:
			stats.Completed++
		case domain.TransactionStatusFailed:
			stats.Failed++
		}
		if completed && t.Kind == domain.TransactionKindPayment {
			if t.Direction == domain.DirectionCredit {
				stats.CreditVolume += t.Amount
			} else {
				stats.DebitVolume += t.Amount
			}
		}
	}
	return stats, nil
}

// Reconcile compares every stored balance with its derived ledger sum.
func (r *TransactionRepo) Reconcile(ctx context.Context) ([]ports.BalanceMismatch, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	derived := make(map[uuid.UUID]int64, len(r.store.wallets))
	for _, t := range r.store.transactions {
		if t.Status == domain.TransactionStatusCompleted {
			derived[t.WalletID] += t.Signed()
		}
	}

	var mismatches []ports.BalanceMismatch
	for id, w := range r.store.wallets {
		if w.Balance != derived[id] {
			mismatches = append(mismatches, ports.BalanceMismatch{WalletID: id, Stored: w.Balance, Derived: derived[id]})
		}
	}
	slices.SortFunc(mismatches, func(a, b ports.BalanceMismatch) int {
		if uuidLess(a.WalletID, b.WalletID) {
			return -1
		}
		return 1
	})
	return mismatches, nil
}
