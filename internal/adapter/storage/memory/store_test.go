package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"phantom-ledger/internal/core/domain"
	"phantom-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ports.BusinessRepository    = (*BusinessRepo)(nil)
	_ ports.WalletRepository      = (*WalletRepo)(nil)
	_ ports.TransactionRepository = (*TransactionRepo)(nil)
	_ ports.UpgradeRepository     = (*UpgradeRepo)(nil)
	_ ports.SettlementRepository  = (*SettlementRepo)(nil)
	_ ports.IdempotencyRepository = (*IdempotencyRepo)(nil)
	_ ports.AuditRepository       = (*AuditRepo)(nil)
	_ ports.DBTransactor          = (*Transactor)(nil)
	_ ports.HealthChecker         = (*Store)(nil)
)

type fixture struct {
	store      *Store
	txr        *Transactor
	wallets    *WalletRepo
	txns       *TransactionRepo
	businessID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := NewStore()
	return &fixture{
		store:      s,
		txr:        NewTransactor(s),
		wallets:    NewWalletRepo(s),
		txns:       NewTransactionRepo(s),
		businessID: uuid.New(),
	}
}

func (f *fixture) wallet(t *testing.T, token string) *domain.Wallet {
	t.Helper()
	w := &domain.Wallet{
		ID:          uuid.New(),
		BusinessID:  f.businessID,
		Currency:    "BWP",
		Status:      domain.WalletStatusActive,
		AccessToken: token,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	require.NoError(t, f.wallets.Create(context.Background(), w))
	return w
}

func credit(walletID uuid.UUID, ref string, amount int64, at time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:        uuid.New(),
		Reference: ref,
		WalletID:  walletID,
		Direction: domain.DirectionCredit,
		Amount:    amount,
		Channel:   domain.ChannelEFT,
		Kind:      domain.TransactionKindPayment,
		Status:    domain.TransactionStatusCompleted,
		CreatedAt: at,
	}
}

func (f *fixture) post(t *testing.T, txn *domain.Transaction) {
	t.Helper()
	ctx := context.Background()
	tx, err := f.txr.Begin(ctx)
	require.NoError(t, err)
	w, err := f.wallets.GetByIDForUpdate(ctx, tx, txn.WalletID)
	require.NoError(t, err)
	require.NoError(t, f.txns.Create(ctx, tx, txn))
	require.NoError(t, f.wallets.UpdateBalance(ctx, tx, w.ID, w.Balance+txn.Signed()))
	require.NoError(t, tx.Commit(ctx))
}

func TestWalletRepo_DuplicateAccessToken(t *testing.T) {
	f := newFixture(t)
	f.wallet(t, "111111")

	err := f.wallets.Create(context.Background(), &domain.Wallet{ID: uuid.New(), AccessToken: "111111"})
	assert.True(t, errors.Is(err, ports.ErrUniqueViolation))
}

func TestTx_CommitPublishesWrites(t *testing.T) {
	f := newFixture(t)
	w := f.wallet(t, "222222")

	f.post(t, credit(w.ID, "EFT-1", 5000, time.Now().UTC()))

	got, err := f.wallets.GetByID(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), got.Balance)

	txn, err := f.txns.GetByReference(context.Background(), "EFT-1")
	require.NoError(t, err)
	require.NotNil(t, txn)
	assert.Equal(t, int64(5000), txn.Amount)
}

func TestTx_RollbackDiscardsWrites(t *testing.T) {
	f := newFixture(t)
	w := f.wallet(t, "333333")
	ctx := context.Background()

	tx, err := f.txr.Begin(ctx)
	require.NoError(t, err)
	_, err = f.wallets.GetByIDForUpdate(ctx, tx, w.ID)
	require.NoError(t, err)
	require.NoError(t, f.txns.Create(ctx, tx, credit(w.ID, "EFT-2", 100, time.Now().UTC())))
	require.NoError(t, f.wallets.UpdateBalance(ctx, tx, w.ID, 100))
	require.NoError(t, tx.Rollback(ctx))

	got, _ := f.wallets.GetByID(ctx, w.ID)
	assert.Zero(t, got.Balance)
	txn, _ := f.txns.GetByReference(ctx, "EFT-2")
	assert.Nil(t, txn)

	assert.ErrorIs(t, tx.Rollback(ctx), pgx.ErrTxClosed)
}

func TestTx_RowLockSerializesWallet(t *testing.T) {
	f := newFixture(t)
	w := f.wallet(t, "444444")
	ctx := context.Background()

	tx1, err := f.txr.Begin(ctx)
	require.NoError(t, err)
	_, err = f.wallets.GetByIDForUpdate(ctx, tx1, w.ID)
	require.NoError(t, err)

	tx2, err := f.txr.Begin(ctx)
	require.NoError(t, err)
	timeout, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = f.wallets.GetByIDForUpdate(timeout, tx2, w.ID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, tx1.Commit(ctx))

	_, err = f.wallets.GetByIDForUpdate(ctx, tx2, w.ID)
	assert.NoError(t, err)
	require.NoError(t, tx2.Rollback(ctx))
}

func TestTx_ConcurrentIncrementsAreNotLost(t *testing.T) {
	f := newFixture(t)
	w := f.wallet(t, "555555")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f.post(t, credit(w.ID, uuid.NewString(), 10, time.Now().UTC()))
		}(i)
	}
	wg.Wait()

	got, _ := f.wallets.GetByID(context.Background(), w.ID)
	assert.Equal(t, int64(500), got.Balance)

	mismatches, err := f.txns.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Empty(t, mismatches)
}

func TestTx_CommitDetectsReferenceRace(t *testing.T) {
	f := newFixture(t)
	a := f.wallet(t, "666661")
	b := f.wallet(t, "666662")
	ctx := context.Background()

	tx1, _ := f.txr.Begin(ctx)
	tx2, _ := f.txr.Begin(ctx)
	require.NoError(t, f.txns.Create(ctx, tx1, credit(a.ID, "SHARED", 1, time.Now().UTC())))
	require.NoError(t, f.txns.Create(ctx, tx2, credit(b.ID, "SHARED", 1, time.Now().UTC())))

	require.NoError(t, tx1.Commit(ctx))
	err := tx2.Commit(ctx)
	assert.True(t, errors.Is(err, ports.ErrUniqueViolation))
}

func TestTransactionRepo_SumCompleted(t *testing.T) {
	f := newFixture(t)
	w := f.wallet(t, "777777")
	ctx := context.Background()
	day := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

	f.post(t, credit(w.ID, "IN-1", 4000, day.Add(time.Hour)))
	f.post(t, credit(w.ID, "IN-OLD", 9999, day.Add(-time.Hour)))

	tx, _ := f.txr.Begin(ctx)
	defer tx.Rollback(ctx) //nolint:errcheck
	require.NoError(t, f.txns.Create(ctx, tx, credit(w.ID, "IN-2", 900, day.Add(2*time.Hour))))
	fee := credit(w.ID, "IN-2:fee", 50, day.Add(2*time.Hour))
	fee.Kind = domain.TransactionKindFee
	require.NoError(t, f.txns.Create(ctx, tx, fee))

	sum, err := f.txns.SumCompleted(ctx, tx, ports.UsageParams{
		WalletID:   w.ID,
		Directions: []domain.Direction{domain.DirectionCredit, domain.DirectionDebit},
		From:       day,
		To:         day.AddDate(0, 0, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4900), sum)

	sum, err = f.txns.SumCompleted(ctx, tx, ports.UsageParams{
		WalletID:   w.ID,
		Directions: []domain.Direction{domain.DirectionDebit},
		From:       day,
		To:         day.AddDate(0, 0, 1),
	})
	require.NoError(t, err)
	assert.Zero(t, sum)
}

func TestTransactionRepo_ListCursor(t *testing.T) {
	f := newFixture(t)
	w := f.wallet(t, "888888")
	base := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		f.post(t, credit(w.ID, uuid.NewString(), int64(i+1), base.Add(time.Duration(i)*time.Minute)))
	}

	page, err := f.txns.List(context.Background(), ports.TransactionListParams{WalletID: &w.ID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(5), page[0].Amount)
	assert.Equal(t, int64(4), page[1].Amount)

	cursor := ports.Cursor{CreatedAt: page[1].CreatedAt, ID: page[1].ID}
	page, err = f.txns.List(context.Background(), ports.TransactionListParams{WalletID: &w.ID, Cursor: &cursor, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, int64(3), page[0].Amount)
}

func TestTransactionRepo_ReconcileReportsDrift(t *testing.T) {
	f := newFixture(t)
	w := f.wallet(t, "999999")
	ctx := context.Background()
	f.post(t, credit(w.ID, "IN-9", 1000, time.Now().UTC()))

	tx, _ := f.txr.Begin(ctx)
	require.NoError(t, f.wallets.UpdateBalance(ctx, tx, w.ID, 1200))
	require.NoError(t, tx.Commit(ctx))

	mismatches, err := f.txns.Reconcile(ctx)
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	assert.Equal(t, int64(1200), mismatches[0].Stored)
	assert.Equal(t, int64(1000), mismatches[0].Derived)
}

func TestUpgradeRepo_SingleOpenWorkflow(t *testing.T) {
	s := NewStore()
	repo := NewUpgradeRepo(s)
	ctx := context.Background()
	walletID := uuid.New()

	first := &domain.UpgradeWorkflow{ID: uuid.New(), WalletID: walletID, State: domain.UpgradeStateRequested}
	require.NoError(t, repo.Create(ctx, first))

	err := repo.Create(ctx, &domain.UpgradeWorkflow{ID: uuid.New(), WalletID: walletID, State: domain.UpgradeStateRequested})
	assert.True(t, errors.Is(err, ports.ErrUniqueViolation))

	first.State = domain.UpgradeStateUpgraded
	require.NoError(t, repo.Update(ctx, first))
	assert.NoError(t, repo.Create(ctx, &domain.UpgradeWorkflow{ID: uuid.New(), WalletID: walletID, State: domain.UpgradeStateRequested}))

	open, err := repo.ListOpen(ctx, time.Now().UTC().Add(time.Second), 10)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestSettlementRepo_ListDue(t *testing.T) {
	s := NewStore()
	repo := NewSettlementRepo(s)
	ctx := context.Background()
	now := time.Now().UTC()
	past, future := now.Add(-time.Minute), now.Add(time.Minute)

	due := &domain.SettlementDelivery{ID: uuid.New(), Status: domain.DeliveryStatusFailed, NextRetryAt: &past}
	later := &domain.SettlementDelivery{ID: uuid.New(), Status: domain.DeliveryStatusPending, NextRetryAt: &future}
	done := &domain.SettlementDelivery{ID: uuid.New(), Status: domain.DeliveryStatusDelivered, NextRetryAt: &past}
	for _, d := range []*domain.SettlementDelivery{due, later, done} {
		require.NoError(t, repo.Create(ctx, d))
	}

	list, err := repo.ListDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, due.ID, list[0].ID)
}

func TestSettlementRepo_ListUnqueued(t *testing.T) {
	f := newFixture(t)
	repo := NewSettlementRepo(f.store)
	ctx := context.Background()
	w := f.wallet(t, "222222")
	now := time.Now().UTC()

	orphan := credit(w.ID, "eft-orphan", 500, now.Add(-10*time.Minute))
	orphan.SettlementStatus = domain.SettlementStatusPending
	queued := credit(w.ID, "eft-queued", 500, now.Add(-10*time.Minute))
	queued.SettlementStatus = domain.SettlementStatusPending
	fresh := credit(w.ID, "eft-fresh", 500, now)
	fresh.SettlementStatus = domain.SettlementStatusPending
	settled := credit(w.ID, "eft-settled", 500, now.Add(-10*time.Minute))
	settled.SettlementStatus = domain.SettlementStatusSettled
	for _, txn := range []*domain.Transaction{orphan, queued, fresh, settled} {
		f.post(t, txn)
	}
	require.NoError(t, repo.Create(ctx, &domain.SettlementDelivery{ID: uuid.New(), TransactionID: queued.ID, Status: domain.DeliveryStatusFailed}))

	list, err := repo.ListUnqueued(ctx, now.Add(-5*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, orphan.ID, list[0].ID)
}

func TestIdempotencyRepo_FirstSaveWins(t *testing.T) {
	repo := NewIdempotencyRepo(NewStore())
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &domain.IdempotencyLog{Key: "k", ResponseJSON: []byte(`"a"`)}))
	require.NoError(t, repo.Save(ctx, &domain.IdempotencyLog{Key: "k", ResponseJSON: []byte(`"b"`)}))

	got, err := repo.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte(`"a"`), got.ResponseJSON)
}
