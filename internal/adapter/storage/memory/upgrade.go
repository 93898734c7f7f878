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

// UpgradeRepo implements ports.UpgradeRepository.
type UpgradeRepo struct {
	store *Store
}

// NewUpgradeRepo creates an UpgradeRepo over s.
func NewUpgradeRepo(s *Store) *UpgradeRepo {
	return &UpgradeRepo{store: s}
}

// Create rejects a second open workflow for the same wallet.
func (r *UpgradeRepo) Create(ctx context.Context, w *domain.UpgradeWorkflow) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, existing := range r.store.upgrades {
		if existing.WalletID == w.WalletID && !existing.State.IsTerminal() {
			return fmt.Errorf("insert upgrade workflow: %w", ports.ErrUniqueViolation)
		}
	}
	c := *w
	r.store.upgrades[w.ID] = &c
	return nil
}

// CreateTx buffers the workflow until tx commits. The caller holds the
// wallet lock, so the open-workflow check cannot go stale before commit.
func (r *UpgradeRepo) CreateTx(ctx context.Context, tx pgx.Tx, w *domain.UpgradeWorkflow) error {
	mt, err := asMemTx(tx)
	if err != nil {
		return err
	}
	for _, pending := range mt.upgrades {
		if pending.WalletID == w.WalletID && !pending.State.IsTerminal() && pending.ID != w.ID {
			return fmt.Errorf("insert upgrade workflow: %w", ports.ErrUniqueViolation)
		}
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, existing := range r.store.upgrades {
		if existing.ID == w.ID || (existing.WalletID == w.WalletID && !existing.State.IsTerminal()) {
			return fmt.Errorf("insert upgrade workflow: %w", ports.ErrUniqueViolation)
		}
	}
	c := *w
	mt.upgrades[w.ID] = &c
	return nil
}

func (r *UpgradeRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.UpgradeWorkflow, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	w, ok := r.store.upgrades[id]
	if !ok {
		return nil, nil
	}
	c := *w
	return &c, nil
}

func (r *UpgradeRepo) GetOpenByWallet(ctx context.Context, walletID uuid.UUID) (*domain.UpgradeWorkflow, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, w := range r.store.upgrades {
		if w.WalletID == walletID && !w.State.IsTerminal() {
			c := *w
			return &c, nil
		}
	}
	return nil, nil
}

func (r *UpgradeRepo) Update(ctx context.Context, w *domain.UpgradeWorkflow) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.upgrades[w.ID]; !ok {
		return fmt.Errorf("upgrade workflow not found: %s", w.ID)
	}
	w.UpdatedAt = timeNow()
	c := *w
	r.store.upgrades[w.ID] = &c
	return nil
}

// UpdateTx buffers the workflow write until tx commits.
func (r *UpgradeRepo) UpdateTx(ctx context.Context, tx pgx.Tx, w *domain.UpgradeWorkflow) error {
	mt, err := asMemTx(tx)
	if err != nil {
		return err
	}
	r.store.mu.RLock()
	_, ok := r.store.upgrades[w.ID]
	r.store.mu.RUnlock()
	if !ok {
		return fmt.Errorf("upgrade workflow not found: %s", w.ID)
	}
	w.UpdatedAt = timeNow()
	c := *w
	mt.upgrades[w.ID] = &c
	return nil
}

func (r *UpgradeRepo) ListOpen(ctx context.Context, updatedBefore time.Time, limit int) ([]domain.UpgradeWorkflow, error) {
	r.store.mu.RLock()
	var open []domain.UpgradeWorkflow
	for _, w := range r.store.upgrades {
		if !w.State.IsTerminal() && !w.UpdatedAt.After(updatedBefore) {
			open = append(open, *w)
		}
	}
	r.store.mu.RUnlock()

	slices.SortFunc(open, func(a, b domain.UpgradeWorkflow) int {
		return a.UpdatedAt.Compare(b.UpdatedAt)
	})
	if limit > 0 && len(open) > limit {
		open = open[:limit]
	}
	return open, nil
}
