package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"phantom-ledger/internal/core/domain"
	"phantom-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

// LimitPolicyImpl implements ports.LimitPolicy over calendar windows in the
// business timezone.
type LimitPolicyImpl struct {
	txRepo     ports.TransactionRepository
	loc        *time.Location
	directions []domain.Direction
}

// NewLimitPolicy creates a LimitPolicyImpl. Payments in directions count
// toward the caps; an empty list counts both.
func NewLimitPolicy(txRepo ports.TransactionRepository, loc *time.Location, directions []domain.Direction) *LimitPolicyImpl {
	if len(directions) == 0 {
		directions = []domain.Direction{domain.DirectionCredit, domain.DirectionDebit}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &LimitPolicyImpl{txRepo: txRepo, loc: loc, directions: directions}
}

// ParseDirections converts configured direction names.
func ParseDirections(names []string) ([]domain.Direction, error) {
	out := make([]domain.Direction, 0, len(names))
	for _, n := range names {
		d := domain.Direction(n)
		if !d.IsValid() {
			return nil, fmt.Errorf("unknown direction %q", n)
		}
		out = append(out, d)
	}
	return out, nil
}

// Counts reports whether payments in direction are summed against the daily
// and monthly caps.
func (p *LimitPolicyImpl) Counts(direction domain.Direction) bool {
	return slices.Contains(p.directions, direction)
}

// Check sums the wallet's completed payments in the current day and month and
// evaluates the caps. It must run under the wallet lock held by tx.
func (p *LimitPolicyImpl) Check(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet, amount int64, now time.Time) (*ports.LimitDecision, error) {
	w := CalendarWindows(now, p.loc)

	var dayUsed, monthUsed int64
	var err error
	if wallet.DailyLimit > 0 {
		dayUsed, err = p.txRepo.SumCompleted(ctx, tx, ports.UsageParams{
			WalletID:   wallet.ID,
			Directions: p.directions,
			From:       w.DayStart,
			To:         w.DayEnd,
		})
		if err != nil {
			return nil, fmt.Errorf("sum daily usage: %w", err)
		}
	}
	if wallet.MonthlyLimit > 0 {
		monthUsed, err = p.txRepo.SumCompleted(ctx, tx, ports.UsageParams{
			WalletID:   wallet.ID,
			Directions: p.directions,
			From:       w.MonthStart,
			To:         w.MonthEnd,
		})
		if err != nil {
			return nil, fmt.Errorf("sum monthly usage: %w", err)
		}
	}

	return EvaluateLimits(wallet.DailyLimit, wallet.MonthlyLimit, dayUsed, monthUsed, amount), nil
}

// Windows are the half-open calendar periods containing an instant.
type Windows struct {
	DayStart, DayEnd     time.Time
	MonthStart, MonthEnd time.Time
}

// CalendarWindows returns the local day and month around now in loc.
func CalendarWindows(now time.Time, loc *time.Location) Windows {
	local := now.In(loc)
	y, m, d := local.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, loc)
	monthStart := time.Date(y, m, 1, 0, 0, 0, 0, loc)
	return Windows{
		DayStart:   dayStart,
		DayEnd:     dayStart.AddDate(0, 0, 1),
		MonthStart: monthStart,
		MonthEnd:   monthStart.AddDate(0, 1, 0),
	}
}

// EvaluateLimits decides a payment against the caps. A cap of zero is
// unlimited and reaching a cap exactly is allowed.
func EvaluateLimits(dailyCap, monthlyCap, dayUsed, monthUsed, amount int64) *ports.LimitDecision {
	if dailyCap > 0 && dayUsed+amount > dailyCap {
		return &ports.LimitDecision{Reason: ports.LimitReasonDaily, Cap: dailyCap, Used: dayUsed, Requested: amount}
	}
	if monthlyCap > 0 && monthUsed+amount > monthlyCap {
		return &ports.LimitDecision{Reason: ports.LimitReasonMonthly, Cap: monthlyCap, Used: monthUsed, Requested: amount}
	}
	return &ports.LimitDecision{Allowed: true, Requested: amount}
}
