package service

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"phantom-ledger/internal/adapter/storage/memory"
	"phantom-ledger/internal/core/domain"
	"phantom-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// harness wires the services over the in-memory store.
type harness struct {
	store      *memory.Store
	businesses *memory.BusinessRepo
	wallets    *memory.WalletRepo
	txns       *memory.TransactionRepo
	upgrades   *memory.UpgradeRepo
	deliveries *memory.SettlementRepo
	idem       *memory.IdempotencyRepo
	transactor *memory.Transactor
	ledger     *LedgerServiceImpl
	business   *domain.Business
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s := memory.NewStore()
	h := &harness{
		store:      s,
		businesses: memory.NewBusinessRepo(s),
		wallets:    memory.NewWalletRepo(s),
		txns:       memory.NewTransactionRepo(s),
		upgrades:   memory.NewUpgradeRepo(s),
		deliveries: memory.NewSettlementRepo(s),
		idem:       memory.NewIdempotencyRepo(s),
		transactor: memory.NewTransactor(s),
	}
	h.ledger = NewLedgerService(h.wallets, h.txns, h.upgrades, h.transactor, nil, time.Hour, nil, newTestLogger())

	now := time.Now().UTC()
	h.business = &domain.Business{
		ID:                   uuid.New(),
		Name:                 "Kgosi Traders",
		Email:                fmt.Sprintf("%s@example.com", uuid.NewString()[:8]),
		SettlementAccountRef: "FNB-0001",
		AccessKey:            uuid.NewString(),
		Status:               domain.BusinessStatusActive,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	require.NoError(t, h.businesses.Create(context.Background(), h.business))
	return h
}

// wallet creates an active wallet and funds it through the ledger so the
// stored balance always reconciles with history.
func (h *harness) wallet(t *testing.T, balance, daily, monthly int64) *domain.Wallet {
	t.Helper()
	now := time.Now().UTC()
	w := &domain.Wallet{
		ID:            uuid.New(),
		BusinessID:    h.business.ID,
		CustomerName:  "Mpho Dube",
		CustomerPhone: "+26771000000",
		Currency:      "BWP",
		DailyLimit:    daily,
		MonthlyLimit:  monthly,
		Status:        domain.WalletStatusActive,
		AccessToken:   fmt.Sprintf("%06d", now.UnixNano()%1000000),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for {
		err := h.wallets.Create(context.Background(), w)
		if err == nil {
			break
		}
		w.AccessToken = fmt.Sprintf("%06d", time.Now().UnixNano()%1000000)
	}
	if balance > 0 {
		_, err := h.ledger.Apply(context.Background(), ports.ApplyRequest{
			WalletID:  w.ID,
			Amount:    balance,
			Direction: domain.DirectionCredit,
			Channel:   domain.ChannelQRCode,
			Reference: "seed-" + w.ID.String(),
		})
		require.NoError(t, err)
		w.Balance = balance
	}
	return w
}

func (h *harness) reload(t *testing.T, id uuid.UUID) *domain.Wallet {
	t.Helper()
	w, err := h.wallets.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, w)
	return w
}
