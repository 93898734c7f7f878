package handler

import (
	"phantom-ledger/internal/adapter/http/dto"
	"phantom-ledger/internal/core/ports"
	"phantom-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// DashboardHandler serves the business dashboard aggregates.
type DashboardHandler struct {
	presenter
	reportingSvc ports.ReportingService
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(reportingSvc ports.ReportingService, money dto.Money) *DashboardHandler {
	return &DashboardHandler{presenter: presenter{money: money}, reportingSvc: reportingSvc}
}

// GetStats handles GET /api/v1/dashboard/stats?period=day|week|month|all.
func (h *DashboardHandler) GetStats(c *gin.Context) {
	businessID, ok := callerID(c)
	if !ok {
		return
	}

	period := c.DefaultQuery("period", "all")
	stats, err := h.reportingSvc.GetDashboardStats(c.Request.Context(), businessID, period)
	if err != nil {
		response.Error(c, err)
		return
	}

	wallets := make(map[string]int64, len(stats.WalletsByStatus))
	for status, n := range stats.WalletsByStatus {
		wallets[string(status)] = n
	}
	response.OK(c, dto.DashboardStatsResponse{
		Period:            period,
		TotalTransactions: stats.TotalTransactions,
		Completed:         stats.Completed,
		Failed:            stats.Failed,
		CreditVolume:      h.money.Format(stats.CreditVolume),
		DebitVolume:       h.money.Format(stats.DebitVolume),
		FeeVolume:         h.money.Format(stats.FeeVolume),
		WalletsByStatus:   wallets,
	})
}
