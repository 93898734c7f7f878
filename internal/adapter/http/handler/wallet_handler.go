package handler

import (
	"math"
	"strconv"
	"time"

	"phantom-ledger/internal/adapter/http/dto"
	"phantom-ledger/internal/core/domain"
	"phantom-ledger/internal/core/ports"
	"phantom-ledger/pkg/apperror"
	"phantom-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// WalletHandler handles the business-facing wallet endpoints.
type WalletHandler struct {
	presenter
	walletSvc ports.WalletService
	ledgerSvc ports.LedgerService
	router    ports.PaymentRouter
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletSvc ports.WalletService, ledgerSvc ports.LedgerService, router ports.PaymentRouter, money dto.Money) *WalletHandler {
	return &WalletHandler{
		presenter: presenter{money: money},
		walletSvc: walletSvc,
		ledgerSvc: ledgerSvc,
		router:    router,
	}
}

// Create handles POST /api/v1/wallets.
func (h *WalletHandler) Create(c *gin.Context) {
	businessID, ok := callerID(c)
	if !ok {
		return
	}
	var req dto.CreateWalletRequest
	if !bind(c, &req) {
		return
	}
	daily, err := h.money.ParseOptional(req.DailyLimit)
	if err != nil {
		response.Error(c, err)
		return
	}
	monthly, err := h.money.ParseOptional(req.MonthlyLimit)
	if err != nil {
		response.Error(c, err)
		return
	}

	wallet, err := h.walletSvc.Create(c.Request.Context(), ports.CreateWalletRequest{
		BusinessID:    businessID,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CustomerEmail: req.CustomerEmail,
		DailyLimit:    daily,
		MonthlyLimit:  monthly,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, h.wallet(wallet))
}

// List handles GET /api/v1/wallets.
func (h *WalletHandler) List(c *gin.Context) {
	businessID, ok := callerID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	params := ports.WalletListParams{BusinessID: businessID, Page: page, PageSize: pageSize}
	if s := c.Query("status"); s != "" {
		status := domain.WalletStatus(s)
		params.Status = &status
	}

	wallets, total, err := h.walletSvc.List(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.WalletResponse, 0, len(wallets))
	for i := range wallets {
		items = append(items, h.wallet(&wallets[i]))
	}
	response.OK(c, dto.WalletListResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	})
}

// Get handles GET /api/v1/wallets/:id.
func (h *WalletHandler) Get(c *gin.Context) {
	wallet, ok := h.owned(c)
	if !ok {
		return
	}
	response.OK(c, h.wallet(wallet))
}

// UpdateLimits handles PATCH /api/v1/wallets/:id/limits.
func (h *WalletHandler) UpdateLimits(c *gin.Context) {
	businessID, ok := callerID(c)
	if !ok {
		return
	}
	walletID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateLimitsRequest
	if !bind(c, &req) {
		return
	}
	if req.DailyLimit == nil && req.MonthlyLimit == nil {
		response.Error(c, apperror.Validation("daily_limit or monthly_limit is required"))
		return
	}
	daily, err := h.money.ParseOptional(req.DailyLimit)
	if err != nil {
		response.Error(c, err)
		return
	}
	monthly, err := h.money.ParseOptional(req.MonthlyLimit)
	if err != nil {
		response.Error(c, err)
		return
	}

	wallet, err := h.walletSvc.UpdateLimits(c.Request.Context(), businessID, walletID, daily, monthly)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, h.wallet(wallet))
}

// ChangeStatus handles PATCH /api/v1/wallets/:id/status.
func (h *WalletHandler) ChangeStatus(c *gin.Context) {
	businessID, ok := callerID(c)
	if !ok {
		return
	}
	walletID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req dto.ChangeStatusRequest
	if !bind(c, &req) {
		return
	}

	wallet, err := h.walletSvc.ChangeStatus(c.Request.Context(), businessID, walletID, domain.WalletStatus(req.Status))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, h.wallet(wallet))
}

// Balance handles GET /api/v1/wallets/:id/balance.
func (h *WalletHandler) Balance(c *gin.Context) {
	wallet, ok := h.owned(c)
	if !ok {
		return
	}
	balance, err := h.ledgerSvc.GetBalance(c.Request.Context(), wallet.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.WalletBalanceResponse{
		WalletID: wallet.ID.String(),
		Balance:  h.money.Format(balance),
		Currency: wallet.Currency,
	})
}

// History handles GET /api/v1/wallets/:id/transactions.
func (h *WalletHandler) History(c *gin.Context) {
	wallet, ok := h.owned(c)
	if !ok {
		return
	}

	params, err := historyParams(c, wallet.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	page, err := h.ledgerSvc.History(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.TransactionResponse, 0, len(page.Transactions))
	for i := range page.Transactions {
		items = append(items, h.transaction(&page.Transactions[i]))
	}
	response.OK(c, dto.HistoryResponse{Items: items, NextCursor: dto.EncodeCursor(page.NextCursor)})
}

// TopUp handles POST /api/v1/wallets/:id/topup.
func (h *WalletHandler) TopUp(c *gin.Context) {
	h.moveFunds(c, domain.DirectionCredit)
}

// Payout handles POST /api/v1/wallets/:id/payout.
func (h *WalletHandler) Payout(c *gin.Context) {
	h.moveFunds(c, domain.DirectionDebit)
}

// moveFunds routes a business-initiated payment on one of its own wallets.
func (h *WalletHandler) moveFunds(c *gin.Context, direction domain.Direction) {
	businessID, ok := callerID(c)
	if !ok {
		return
	}
	walletID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req dto.FundsRequest
	if !bind(c, &req) {
		return
	}
	amount, err := h.money.Parse(req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}
	channel := domain.ChannelPhantomWallet
	if req.Channel != "" {
		channel = domain.Channel(req.Channel)
	}

	result, err := h.router.Process(c.Request.Context(), domain.ChannelPayload{
		Channel:    channel,
		Amount:     amount,
		Wallet:     domain.WalletRef{ID: &walletID},
		Direction:  direction,
		Reference:  req.Reference,
		Metadata:   req.Metadata,
		BusinessID: &businessID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	respondPayment(c, h.apply(&result.ApplyResult, result.SettlementQueued))
}

// owned loads the :id wallet and checks it belongs to the caller.
func (h *WalletHandler) owned(c *gin.Context) (*domain.Wallet, bool) {
	businessID, ok := callerID(c)
	if !ok {
		return nil, false
	}
	walletID, ok := uuidParam(c, "id")
	if !ok {
		return nil, false
	}
	wallet, err := h.walletSvc.Get(c.Request.Context(), businessID, walletID)
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	return wallet, true
}

func historyParams(c *gin.Context, walletID uuid.UUID) (ports.TransactionListParams, error) {
	params := ports.TransactionListParams{WalletID: &walletID, Limit: defaultHistoryLimit}

	if l := c.Query("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v < 1 || v > maxHistoryLimit {
			return params, apperror.Validation("limit must be between 1 and " + strconv.Itoa(maxHistoryLimit))
		}
		params.Limit = v
	}
	if d := c.Query("direction"); d != "" {
		direction := domain.Direction(d)
		if !direction.IsValid() {
			return params, apperror.Validation("direction must be credit or debit")
		}
		params.Direction = &direction
	}
	if ch := c.Query("channel"); ch != "" {
		channel := domain.Channel(ch)
		params.Channel = &channel
	}
	if s := c.Query("status"); s != "" {
		status := domain.TransactionStatus(s)
		params.Status = &status
	}
	for key, dst := range map[string]**time.Time{"from": &params.From, "to": &params.To} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return params, apperror.Validation(key + " must be an RFC3339 timestamp")
		}
		*dst = &t
	}
	cursor, err := dto.DecodeCursor(c.Query("cursor"))
	if err != nil {
		return params, err
	}
	params.Cursor = cursor
	return params, nil
}

// respondPayment answers 201 for a new entry and 200 for a replay.
func respondPayment(c *gin.Context, body dto.PaymentResponse) {
	if body.Replayed {
		response.OK(c, body)
		return
	}
	response.Created(c, body)
}
