package service

import (
	"context"
	"fmt"
	"time"

	"phantom-ledger/internal/core/ports"
	"phantom-ledger/pkg/apperror"

	"github.com/google/uuid"
)

// reportingService implements ports.ReportingService.
type reportingService struct {
	txRepo     ports.TransactionRepository
	walletRepo ports.WalletRepository
	loc        *time.Location
	now        func() time.Time
}

// NewReportingService creates a new reporting service. Periods are calendar
// periods in loc.
func NewReportingService(
	txRepo ports.TransactionRepository,
	walletRepo ports.WalletRepository,
	loc *time.Location,
) ports.ReportingService {
	if loc == nil {
		loc = time.UTC
	}
	return &reportingService{
		txRepo:     txRepo,
		walletRepo: walletRepo,
		loc:        loc,
		now:        time.Now,
	}
}

// GetDashboardStats recomputes the business aggregates from transaction history.
func (s *reportingService) GetDashboardStats(ctx context.Context, businessID uuid.UUID, period string) (*ports.BusinessStats, error) {
	start, err := s.periodStart(period)
	if err != nil {
		return nil, err
	}

	stats, err := s.txRepo.GetStats(ctx, businessID, start)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("transaction stats: %w", err))
	}
	byStatus, err := s.walletRepo.CountByStatus(ctx, businessID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("wallet counts: %w", err))
	}

	return &ports.BusinessStats{TransactionStats: *stats, WalletsByStatus: byStatus}, nil
}

// periodStart returns nil for "all".
func (s *reportingService) periodStart(period string) (*time.Time, error) {
	local := s.now().In(s.loc)
	y, m, d := local.Date()

	var start time.Time
	switch period {
	case "day":
		start = time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	case "week":
		// weeks start on Monday
		offset := (int(local.Weekday()) + 6) % 7
		start = time.Date(y, m, d-offset, 0, 0, 0, 0, s.loc)
	case "month":
		start = time.Date(y, m, 1, 0, 0, 0, 0, s.loc)
	case "all", "":
		return nil, nil
	default:
		return nil, apperror.Validation("invalid period: must be day, week, month, or all")
	}
	return &start, nil
}
