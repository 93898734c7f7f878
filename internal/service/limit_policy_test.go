package service

import (
	"context"
	"testing"
	"time"

	"phantom-ledger/config"
	"phantom-ledger/internal/core/domain"
	"phantom-ledger/internal/core/ports"
	"phantom-ledger/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func gaborone(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Africa/Gaborone")
	require.NoError(t, err)
	return loc
}

func TestEvaluateLimits(t *testing.T) {
	tests := []struct {
		name               string
		daily, monthly     int64
		dayUsed, monthUsed int64
		amount             int64
		allowed            bool
		reason             ports.LimitReason
	}{
		{"under both", 5000, 20000, 100, 100, 100, true, ports.LimitReasonNone},
		{"reaches daily exactly", 5000, 0, 4900, 0, 100, true, ports.LimitReasonNone},
		{"exceeds daily", 5000, 0, 4900, 0, 150, false, ports.LimitReasonDaily},
		{"exceeds monthly", 0, 10000, 0, 9990, 20, false, ports.LimitReasonMonthly},
		{"daily checked first", 100, 100, 100, 100, 1, false, ports.LimitReasonDaily},
		{"unlimited", 0, 0, 1 << 40, 1 << 40, 1 << 20, true, ports.LimitReasonNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := EvaluateLimits(tt.daily, tt.monthly, tt.dayUsed, tt.monthUsed, tt.amount)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.reason, d.Reason)
			assert.Equal(t, tt.amount, d.Requested)
		})
	}
}

func TestCalendarWindows_UsesBusinessTimezone(t *testing.T) {
	loc := gaborone(t)
	// 23:30 UTC on Jan 31 is already Feb 1 in Gaborone (UTC+2).
	now := time.Date(2026, 1, 31, 23, 30, 0, 0, time.UTC)

	w := CalendarWindows(now, loc)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, loc), w.DayStart)
	assert.Equal(t, time.Date(2026, 2, 2, 0, 0, 0, 0, loc), w.DayEnd)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, loc), w.MonthStart)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, loc), w.MonthEnd)
	assert.True(t, w.DayStart.Equal(time.Date(2026, 1, 31, 22, 0, 0, 0, time.UTC)))
}

func TestLimitPolicy_Check_QueriesOnlyCappedWindows(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	txRepo := mocks.NewMockTransactionRepository(ctrl)
	loc := gaborone(t)
	policy := NewLimitPolicy(txRepo, loc, []domain.Direction{domain.DirectionDebit})

	wallet := &domain.Wallet{ID: uuid.New(), DailyLimit: 5000}
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, loc)

	txRepo.EXPECT().SumCompleted(gomock.Any(), nil, gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ pgx.Tx, params ports.UsageParams) (int64, error) {
			assert.Equal(t, wallet.ID, params.WalletID)
			assert.Equal(t, []domain.Direction{domain.DirectionDebit}, params.Directions)
			assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, loc), params.From)
			assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, loc), params.To)
			return 4900, nil
		},
	)

	d, err := policy.Check(context.Background(), nil, wallet, 150, now)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ports.LimitReasonDaily, d.Reason)
	assert.Equal(t, int64(4900), d.Used)
	assert.Equal(t, int64(5000), d.Cap)
}

func TestLimitPolicy_Counts(t *testing.T) {
	both := NewLimitPolicy(nil, nil, nil)
	assert.True(t, both.Counts(domain.DirectionCredit))
	assert.True(t, both.Counts(domain.DirectionDebit))

	debits := NewLimitPolicy(nil, nil, []domain.Direction{domain.DirectionDebit})
	assert.False(t, debits.Counts(domain.DirectionCredit))
	assert.True(t, debits.Counts(domain.DirectionDebit))
}

func TestParseDirections(t *testing.T) {
	dirs, err := ParseDirections([]string{"credit", "debit"})
	require.NoError(t, err)
	assert.Equal(t, []domain.Direction{domain.DirectionCredit, domain.DirectionDebit}, dirs)

	_, err = ParseDirections([]string{"refund"})
	assert.Error(t, err)
}

func TestFeeSchedule(t *testing.T) {
	fees, err := NewFeeScheduleFromConfig(map[string]config.FeeConfig{
		"ussd":    {Fixed: "1.50"},
		"card":    {Fixed: "1.00", Percent: "1.5"},
		"qr_code": {Fixed: "0", Percent: "0"},
	}, 2)
	require.NoError(t, err)

	assert.Equal(t, int64(150), fees.Fee(domain.ChannelUSSD, 10000))
	assert.Equal(t, int64(0), fees.Fee(domain.ChannelQRCode, 10000))
	assert.Equal(t, int64(0), fees.Fee(domain.ChannelEFT, 10000), "channels without a rule are free")
	// 100 + 1.5% of 10000 = 250
	assert.Equal(t, int64(250), fees.Fee(domain.ChannelCard, 10000))
	// 1.5% of 1033 = 15.495, rounds to 15
	assert.Equal(t, int64(115), fees.Fee(domain.ChannelCard, 1033))
	// 1.5% of 1100 = 16.5, rounds half up to 17
	assert.Equal(t, int64(117), fees.Fee(domain.ChannelCard, 1100))
}

func TestFeeSchedule_RejectsBadConfig(t *testing.T) {
	_, err := NewFeeScheduleFromConfig(map[string]config.FeeConfig{"eft": {Fixed: "5.001"}}, 2)
	assert.Error(t, err)

	_, err = NewFeeScheduleFromConfig(map[string]config.FeeConfig{"eft": {Fixed: "5", Percent: "-1"}}, 2)
	assert.Error(t, err)
}
