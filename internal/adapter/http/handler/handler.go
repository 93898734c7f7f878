package handler

import (
	"time"

	"phantom-ledger/internal/adapter/http/dto"
	"phantom-ledger/internal/adapter/http/middleware"
	"phantom-ledger/internal/core/domain"
	"phantom-ledger/internal/core/ports"
	"phantom-ledger/pkg/apperror"
	"phantom-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// callerID returns the authenticated business or writes AUTH_003.
func callerID(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.BusinessID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
	}
	return id, ok
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Error(c, apperror.Validation(name+" must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

// bind decodes and validates a JSON body, then sanitizes its strings.
func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return false
	}
	dto.SanitizeStruct(req)
	return true
}

// presenter renders domain values with amounts as major-unit strings.
type presenter struct {
	money dto.Money
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func (p presenter) wallet(w *domain.Wallet) dto.WalletResponse {
	return dto.WalletResponse{
		ID:               w.ID.String(),
		CustomerName:     w.CustomerName,
		CustomerPhone:    w.CustomerPhone,
		CustomerEmail:    w.CustomerEmail,
		Balance:          p.money.Format(w.Balance),
		Currency:         w.Currency,
		DailyLimit:       p.money.Format(w.DailyLimit),
		MonthlyLimit:     p.money.Format(w.MonthlyLimit),
		Status:           string(w.Status),
		AccessToken:      w.AccessToken,
		LinkedAccountRef: w.LinkedAccountRef,
		CreatedAt:        formatTime(w.CreatedAt),
		UpdatedAt:        formatTime(w.UpdatedAt),
	}
}

func (p presenter) transaction(tx *domain.Transaction) dto.TransactionResponse {
	return dto.TransactionResponse{
		ID:               tx.ID.String(),
		Reference:        tx.Reference,
		WalletID:         tx.WalletID.String(),
		Direction:        string(tx.Direction),
		Amount:           p.money.Format(tx.Amount),
		Channel:          string(tx.Channel),
		Kind:             string(tx.Kind),
		Status:           string(tx.Status),
		BalanceAfter:     p.money.Format(tx.BalanceAfter),
		Metadata:         tx.Metadata,
		SettlementStatus: string(tx.SettlementStatus),
		CreatedAt:        formatTime(tx.CreatedAt),
		ProcessedAt:      formatTimePtr(tx.ProcessedAt),
	}
}

func (p presenter) apply(res *ports.ApplyResult, settlementQueued bool) dto.PaymentResponse {
	out := dto.PaymentResponse{
		Transaction:      p.transaction(res.Transaction),
		Balance:          p.money.Format(res.Balance),
		Replayed:         res.Replayed,
		SettlementQueued: settlementQueued,
	}
	if res.Fee != nil {
		fee := p.transaction(res.Fee)
		out.Fee = &fee
	}
	return out
}

func (p presenter) upgrade(wf *domain.UpgradeWorkflow) dto.UpgradeResponse {
	out := dto.UpgradeResponse{
		ID:          wf.ID.String(),
		WalletID:    wf.WalletID.String(),
		State:       string(wf.State),
		AccountRef:  wf.AccountRef,
		TransferRef: wf.TransferRef,
		Frozen:      wf.Frozen,
		Alert:       wf.Alert,
		LastError:   wf.LastError,
		Attempts:    wf.Attempts,
		CreatedAt:   formatTime(wf.CreatedAt),
		UpdatedAt:   formatTime(wf.UpdatedAt),
		CompletedAt: formatTimePtr(wf.CompletedAt),
	}
	if wf.TransferAmount != nil {
		amount := p.money.Format(*wf.TransferAmount)
		out.TransferAmount = &amount
	}
	return out
}
