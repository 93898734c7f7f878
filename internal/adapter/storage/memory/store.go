// Package memory is an in-process storage driver. It keeps the same
// row-locking and commit semantics as the PostgreSQL adapter so the
// ledger can run without a database.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"sync"

	"phantom-ledger/internal/core/domain"
	"phantom-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/semaphore"
)

// Store holds every table. Committed state is guarded by mu; wallet rows
// additionally carry a lock held from GetByIDForUpdate until commit or rollback.
type Store struct {
	mu           sync.RWMutex
	businesses   map[uuid.UUID]*domain.Business
	wallets      map[uuid.UUID]*domain.Wallet
	transactions map[uuid.UUID]*domain.Transaction
	byReference  map[string]uuid.UUID
	upgrades     map[uuid.UUID]*domain.UpgradeWorkflow
	deliveries   map[uuid.UUID]*domain.SettlementDelivery
	idempotency  map[string]*domain.IdempotencyLog
	audit        []domain.AuditLog

	lockMu sync.Mutex
	locks  map[uuid.UUID]*semaphore.Weighted
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		businesses:   make(map[uuid.UUID]*domain.Business),
		wallets:      make(map[uuid.UUID]*domain.Wallet),
		transactions: make(map[uuid.UUID]*domain.Transaction),
		byReference:  make(map[string]uuid.UUID),
		upgrades:     make(map[uuid.UUID]*domain.UpgradeWorkflow),
		deliveries:   make(map[uuid.UUID]*domain.SettlementDelivery),
		idempotency:  make(map[string]*domain.IdempotencyLog),
		locks:        make(map[uuid.UUID]*semaphore.Weighted),
	}
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// Name returns the dependency name.
func (s *Store) Name() string { return "memory" }

// AuditLogs returns a copy of the audit trail.
func (s *Store) AuditLogs() []domain.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AuditLog, len(s.audit))
	copy(out, s.audit)
	return out
}

func (s *Store) rowLock(id uuid.UUID) *semaphore.Weighted {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = semaphore.NewWeighted(1)
		s.locks[id] = l
	}
	return l
}

// Transactor implements ports.DBTransactor.
type Transactor struct {
	store *Store
}

// NewTransactor creates a Transactor over s.
func NewTransactor(s *Store) *Transactor {
	return &Transactor{store: s}
}

// Begin starts a buffered transaction.
func (t *Transactor) Begin(ctx context.Context) (pgx.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memTx{
		store:    t.store,
		wallets:  make(map[uuid.UUID]*domain.Wallet),
		upgrades: make(map[uuid.UUID]*domain.UpgradeWorkflow),
	}, nil
}

// memTx buffers writes until Commit. The embedded pgx.Tx is nil; only
// Commit and Rollback are meaningful for this driver.
type memTx struct {
	pgx.Tx

	store        *Store
	held         []uuid.UUID
	wallets      map[uuid.UUID]*domain.Wallet
	transactions []*domain.Transaction
	upgrades     map[uuid.UUID]*domain.UpgradeWorkflow
	closed       bool
}

func asMemTx(tx pgx.Tx) (*memTx, error) {
	mt, ok := tx.(*memTx)
	if !ok {
		return nil, fmt.Errorf("memory store: foreign transaction %T", tx)
	}
	if mt.closed {
		return nil, pgx.ErrTxClosed
	}
	return mt, nil
}

func (t *memTx) holds(id uuid.UUID) bool {
	for _, h := range t.held {
		if h == id {
			return true
		}
	}
	return false
}

func (t *memTx) lock(ctx context.Context, id uuid.UUID) error {
	if t.holds(id) {
		return nil
	}
	if err := t.store.rowLock(id).Acquire(ctx, 1); err != nil {
		return fmt.Errorf("lock wallet %s: %w", id, err)
	}
	t.held = append(t.held, id)
	return nil
}

func (t *memTx) release() {
	for _, id := range t.held {
		t.store.rowLock(id).Release(1)
	}
	t.held = nil
	t.closed = true
}

func (t *memTx) pendingByReference(ref string) *domain.Transaction {
	for _, txn := range t.transactions {
		if txn.Reference == ref {
			return txn
		}
	}
	return nil
}

// Commit publishes buffered writes. A reference claimed by another
// transaction in the meantime fails the commit with ports.ErrUniqueViolation.
func (t *memTx) Commit(ctx context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	defer t.release()

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, txn := range t.transactions {
		if _, taken := s.byReference[txn.Reference]; taken {
			return fmt.Errorf("commit: reference %s: %w", txn.Reference, ports.ErrUniqueViolation)
		}
	}
	for id, w := range t.wallets {
		s.wallets[id] = w
	}
	for _, txn := range t.transactions {
		s.transactions[txn.ID] = txn
		s.byReference[txn.Reference] = txn.ID
	}
	for id, w := range t.upgrades {
		s.upgrades[id] = w
	}
	return nil
}

// Rollback discards buffered writes and releases row locks.
func (t *memTx) Rollback(ctx context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.release()
	return nil
}

func cloneWallet(w *domain.Wallet) *domain.Wallet {
	c := *w
	return &c
}

func cloneTransaction(t *domain.Transaction) *domain.Transaction {
	c := *t
	c.Metadata = maps.Clone(t.Metadata)
	return &c
}

func uuidLess(a, b uuid.UUID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}
