package handler

import (
	"phantom-ledger/internal/adapter/http/dto"
	"phantom-ledger/internal/core/domain"
	"phantom-ledger/internal/core/ports"
	"phantom-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PaymentHandler handles channel payments and wallet-to-wallet transfers.
type PaymentHandler struct {
	presenter
	router ports.PaymentRouter
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(router ports.PaymentRouter, money dto.Money) *PaymentHandler {
	return &PaymentHandler{presenter: presenter{money: money}, router: router}
}

// ChannelPayment handles POST /api/v1/channel/payments. The caller is a
// channel adapter authenticated by HMAC; the wallet must belong to the
// business whose access key signed the request.
func (h *PaymentHandler) ChannelPayment(c *gin.Context) {
	businessID, ok := callerID(c)
	if !ok {
		return
	}
	var req dto.ChannelPaymentRequest
	if !bind(c, &req) {
		return
	}
	amount, err := h.money.Parse(req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}

	ref := domain.WalletRef{AccessToken: req.AccessToken}
	if req.WalletID != nil {
		id := uuid.MustParse(*req.WalletID) // validated by binding
		ref.ID = &id
	}

	result, err := h.router.Process(c.Request.Context(), domain.ChannelPayload{
		Channel:    domain.Channel(req.Channel),
		Amount:     amount,
		Wallet:     ref,
		Direction:  domain.Direction(req.Direction),
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

// Transfer handles POST /api/v1/transfers.
func (h *PaymentHandler) Transfer(c *gin.Context) {
	businessID, ok := callerID(c)
	if !ok {
		return
	}
	var req dto.TransferRequest
	if !bind(c, &req) {
		return
	}
	amount, err := h.money.Parse(req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.router.Transfer(c.Request.Context(), ports.TransferRequest{
		BusinessID: businessID,
		From:       uuid.MustParse(req.FromWalletID),
		To:         uuid.MustParse(req.ToWalletID),
		Amount:     amount,
		Reference:  req.Reference,
		Metadata:   req.Metadata,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	body := dto.TransferResponse{
		Debit:  h.apply(result.Debit, false),
		Credit: h.apply(result.Credit, false),
	}
	if body.Debit.Replayed && body.Credit.Replayed {
		response.OK(c, body)
		return
	}
	response.Created(c, body)
}
