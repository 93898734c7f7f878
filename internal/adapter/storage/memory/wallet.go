package memory

import (
	"context"
	"fmt"
	"slices"

	"phantom-ledger/internal/core/domain"
	"phantom-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// BusinessRepo implements ports.BusinessRepository.
type BusinessRepo struct {
	store *Store
}

// NewBusinessRepo creates a BusinessRepo over s.
func NewBusinessRepo(s *Store) *BusinessRepo {
	return &BusinessRepo{store: s}
}

func (r *BusinessRepo) Create(ctx context.Context, b *domain.Business) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, existing := range r.store.businesses {
		if existing.Email == b.Email || existing.AccessKey == b.AccessKey {
			return fmt.Errorf("insert business: %w", ports.ErrUniqueViolation)
		}
	}
	c := *b
	r.store.businesses[b.ID] = &c
	return nil
}

func (r *BusinessRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Business, error) {
	return r.find(func(b *domain.Business) bool { return b.ID == id }), nil
}

func (r *BusinessRepo) GetByEmail(ctx context.Context, email string) (*domain.Business, error) {
	return r.find(func(b *domain.Business) bool { return b.Email == email }), nil
}

func (r *BusinessRepo) GetByAccessKey(ctx context.Context, accessKey string) (*domain.Business, error) {
	return r.find(func(b *domain.Business) bool { return b.AccessKey == accessKey }), nil
}

func (r *BusinessRepo) find(match func(*domain.Business) bool) *domain.Business {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, b := range r.store.businesses {
		if match(b) {
			c := *b
			return &c
		}
	}
	return nil
}

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	store *Store
}

// NewWalletRepo creates a WalletRepo over s.
func NewWalletRepo(s *Store) *WalletRepo {
	return &WalletRepo{store: s}
}

func (r *WalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, existing := range r.store.wallets {
		if existing.AccessToken == w.AccessToken {
			return fmt.Errorf("insert wallet: %w", ports.ErrUniqueViolation)
		}
	}
	r.store.wallets[w.ID] = cloneWallet(w)
	return nil
}

func (r *WalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	w, ok := r.store.wallets[id]
	if !ok {
		return nil, nil
	}
	return cloneWallet(w), nil
}

func (r *WalletRepo) GetByAccessToken(ctx context.Context, accessToken string) (*domain.Wallet, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, w := range r.store.wallets {
		if w.AccessToken == accessToken {
			return cloneWallet(w), nil
		}
	}
	return nil, nil
}

// GetByIDForUpdate takes the wallet's row lock for the life of tx.
func (r *WalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	mt, err := asMemTx(tx)
	if err != nil {
		return nil, err
	}
	if w, ok := mt.wallets[id]; ok {
		return cloneWallet(w), nil
	}

	r.store.mu.RLock()
	_, exists := r.store.wallets[id]
	r.store.mu.RUnlock()
	if !exists {
		return nil, nil
	}

	if err := mt.lock(ctx, id); err != nil {
		return nil, err
	}

	r.store.mu.RLock()
	w := cloneWallet(r.store.wallets[id])
	r.store.mu.RUnlock()
	mt.wallets[id] = w
	return cloneWallet(w), nil
}

func (r *WalletRepo) List(ctx context.Context, params ports.WalletListParams) ([]domain.Wallet, int64, error) {
	r.store.mu.RLock()
	var matched []domain.Wallet
	for _, w := range r.store.wallets {
		if w.BusinessID != params.BusinessID {
			continue
		}
		if params.Status != nil && w.Status != *params.Status {
			continue
		}
		matched = append(matched, *w)
	}
	r.store.mu.RUnlock()

	slices.SortFunc(matched, func(a, b domain.Wallet) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		if uuidLess(a.ID, b.ID) {
			return 1
		}
		return -1
	})

	total := int64(len(matched))
	start := (params.Page - 1) * params.PageSize
	if start < 0 || start >= len(matched) {
		return []domain.Wallet{}, total, nil
	}
	end := min(start+params.PageSize, len(matched))
	return matched[start:end], total, nil
}

func (r *WalletRepo) CountByStatus(ctx context.Context, businessID uuid.UUID) (map[domain.WalletStatus]int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	counts := make(map[domain.WalletStatus]int64)
	for _, w := range r.store.wallets {
		if w.BusinessID == businessID {
			counts[w.Status]++
		}
	}
	return counts, nil
}

func (r *WalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance int64) error {
	return r.mutate(ctx, tx, walletID, func(w *domain.Wallet) error {
		if balance < 0 {
			return fmt.Errorf("update wallet balance: negative balance %d", balance)
		}
		w.Balance = balance
		return nil
	})
}

func (r *WalletRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, status domain.WalletStatus, linkedAccountRef *string) error {
	return r.mutate(ctx, tx, walletID, func(w *domain.Wallet) error {
		w.Status = status
		if linkedAccountRef != nil {
			w.LinkedAccountRef = linkedAccountRef
		}
		return nil
	})
}

func (r *WalletRepo) UpdateLimits(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, dailyLimit, monthlyLimit int64) error {
	return r.mutate(ctx, tx, walletID, func(w *domain.Wallet) error {
		w.DailyLimit = dailyLimit
		w.MonthlyLimit = monthlyLimit
		return nil
	})
}

func (r *WalletRepo) mutate(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, fn func(*domain.Wallet) error) error {
	mt, err := asMemTx(tx)
	if err != nil {
		return err
	}
	w, ok := mt.wallets[walletID]
	if !ok {
		if _, err := r.GetByIDForUpdate(ctx, tx, walletID); err != nil {
			return err
		}
		if w, ok = mt.wallets[walletID]; !ok {
			return fmt.Errorf("wallet not found: %s", walletID)
		}
	}
	if err := fn(w); err != nil {
		return err
	}
	w.UpdatedAt = timeNow()
	return nil
}
