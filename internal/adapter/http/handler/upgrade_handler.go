package handler

import (
	"phantom-ledger/internal/adapter/http/dto"
	"phantom-ledger/internal/adapter/kyc"
	"phantom-ledger/internal/core/domain"
	"phantom-ledger/internal/core/ports"
	"phantom-ledger/pkg/apperror"
	"phantom-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// UpgradeHandler handles wallet upgrades and the KYC provider callback.
type UpgradeHandler struct {
	presenter
	upgradeSvc ports.UpgradeService
	log        zerolog.Logger
}

// NewUpgradeHandler creates a new UpgradeHandler.
func NewUpgradeHandler(upgradeSvc ports.UpgradeService, money dto.Money, log zerolog.Logger) *UpgradeHandler {
	return &UpgradeHandler{presenter: presenter{money: money}, upgradeSvc: upgradeSvc, log: log}
}

// Request handles POST /api/v1/wallets/:id/upgrade. The workflow runs one
// step inline; 202 means it is still in flight.
func (h *UpgradeHandler) Request(c *gin.Context) {
	businessID, ok := callerID(c)
	if !ok {
		return
	}
	walletID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	wf, err := h.upgradeSvc.Request(c.Request.Context(), businessID, walletID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respond(c, wf)
}

// Get handles GET /api/v1/upgrades/:id.
func (h *UpgradeHandler) Get(c *gin.Context) {
	businessID, ok := callerID(c)
	if !ok {
		return
	}
	workflowID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	wf, err := h.upgradeSvc.Get(c.Request.Context(), businessID, workflowID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, h.upgrade(wf))
}

// Advance handles POST /api/v1/upgrades/:id/advance, retrying a stalled workflow now.
func (h *UpgradeHandler) Advance(c *gin.Context) {
	businessID, ok := callerID(c)
	if !ok {
		return
	}
	workflowID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if _, err := h.upgradeSvc.Get(c.Request.Context(), businessID, workflowID); err != nil {
		response.Error(c, err)
		return
	}
	wf, err := h.upgradeSvc.Advance(c.Request.Context(), workflowID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.respond(c, wf)
}

// KYCWebhook handles POST /api/v1/webhooks/kyc. Only a verified result moves
// the workflow; pending and rejected results are acknowledged and left to the poller.
func (h *UpgradeHandler) KYCWebhook(c *gin.Context) {
	var req dto.KYCWebhookRequest
	if !bind(c, &req) {
		return
	}
	status, err := kyc.ParseStatus(req.Status)
	if err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	if !status.IsComplete() {
		h.log.Info().Str("customer_ref", req.CustomerRef).Str("kyc_status", string(status)).Msg("kyc callback acknowledged")
		response.Accepted(c, gin.H{"customer_ref": req.CustomerRef, "kyc_status": status})
		return
	}

	wf, err := h.upgradeSvc.KYCCompleted(c.Request.Context(), req.CustomerRef)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, h.upgrade(wf))
}

func (h *UpgradeHandler) respond(c *gin.Context, wf *domain.UpgradeWorkflow) {
	if wf.State.IsTerminal() {
		response.OK(c, h.upgrade(wf))
		return
	}
	response.Accepted(c, h.upgrade(wf))
}
