package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"phantom-ledger/internal/core/domain"
	"phantom-ledger/internal/core/ports"
	"phantom-ledger/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestReportingService_PeriodStart(t *testing.T) {
	loc := gaborone(t)
	svc := NewReportingService(nil, nil, loc).(*reportingService)
	// Wednesday 2026-03-11 00:30 in Gaborone, still Tuesday in UTC.
	svc.now = func() time.Time { return time.Date(2026, 3, 10, 22, 30, 0, 0, time.UTC) }

	tests := []struct {
		period string
		want   *time.Time
	}{
		{"day", ptrTime(time.Date(2026, 3, 11, 0, 0, 0, 0, loc))},
		{"week", ptrTime(time.Date(2026, 3, 9, 0, 0, 0, 0, loc))},
		{"month", ptrTime(time.Date(2026, 3, 1, 0, 0, 0, 0, loc))},
		{"all", nil},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			got, err := svc.periodStart(tt.period)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, tt.want.Equal(*got), "got %s want %s", got, tt.want)
		})
	}

	_, err := svc.periodStart("year")
	assertCode(t, err, "PAY_002")
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestReportingService_GetDashboardStats(t *testing.T) {
	ctrl := gomock.NewController(t)
	txRepo := mocks.NewMockTransactionRepository(ctrl)
	walletRepo := mocks.NewMockWalletRepository(ctrl)
	svc := NewReportingService(txRepo, walletRepo, time.UTC)

	businessID := uuid.New()
	txRepo.EXPECT().GetStats(gomock.Any(), businessID, (*time.Time)(nil)).Return(&ports.TransactionStats{
		TotalTransactions: 12,
		Completed:         11,
		Failed:            1,
		CreditVolume:      500000,
		DebitVolume:       120000,
		FeeVolume:         1500,
	}, nil)
	walletRepo.EXPECT().CountByStatus(gomock.Any(), businessID).Return(map[domain.WalletStatus]int64{
		domain.WalletStatusActive:   4,
		domain.WalletStatusUpgraded: 1,
	}, nil)

	stats, err := svc.GetDashboardStats(context.Background(), businessID, "all")
	require.NoError(t, err)
	assert.Equal(t, int64(12), stats.TotalTransactions)
	assert.Equal(t, int64(1500), stats.FeeVolume)
	assert.Equal(t, int64(4), stats.WalletsByStatus[domain.WalletStatusActive])
}

func TestReportingService_GetDashboardStats_Errors(t *testing.T) {
	ctrl := gomock.NewController(t)
	txRepo := mocks.NewMockTransactionRepository(ctrl)
	walletRepo := mocks.NewMockWalletRepository(ctrl)
	svc := NewReportingService(txRepo, walletRepo, nil)
	ctx := context.Background()

	_, err := svc.GetDashboardStats(ctx, uuid.New(), "fortnight")
	assertCode(t, err, "PAY_002")

	txRepo.EXPECT().GetStats(gomock.Any(), gomock.Any(), gomock.Not(gomock.Nil())).Return(nil, errors.New("db down"))
	_, err = svc.GetDashboardStats(ctx, uuid.New(), "day")
	assertCode(t, err, "SYS_001")

	txRepo.EXPECT().GetStats(gomock.Any(), gomock.Any(), gomock.Any()).Return(&ports.TransactionStats{}, nil)
	walletRepo.EXPECT().CountByStatus(gomock.Any(), gomock.Any()).Return(nil, errors.New("db down"))
	_, err = svc.GetDashboardStats(ctx, uuid.New(), "month")
	assertCode(t, err, "SYS_001")
}

func TestReportingService_DerivedFromHistory(t *testing.T) {
	h := newHarness(t)
	svc := NewReportingService(h.txns, h.wallets, time.UTC)
	ctx := context.Background()
	w := h.wallet(t, 1000, 0, 0)

	req := ledgerDebit(w.ID, "stats-debit", 300)
	req.Fee = 20
	_, err := h.ledger.Apply(ctx, req)
	require.NoError(t, err)

	stats, err := svc.GetDashboardStats(ctx, h.business.ID, "day")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), stats.CreditVolume)
	assert.Equal(t, int64(300), stats.DebitVolume)
	assert.Equal(t, int64(20), stats.FeeVolume)
	assert.Equal(t, int64(1), stats.WalletsByStatus[domain.WalletStatusActive])
}
