package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionRegister       AuditAction = "REGISTER"
	AuditActionLogin          AuditAction = "LOGIN"
	AuditActionWalletCreate   AuditAction = "WALLET_CREATE"
	AuditActionWalletLimits   AuditAction = "WALLET_LIMITS"
	AuditActionWalletStatus   AuditAction = "WALLET_STATUS"
	AuditActionPayment        AuditAction = "PAYMENT"
	AuditActionTransfer       AuditAction = "TRANSFER"
	AuditActionUpgradeRequest AuditAction = "UPGRADE_REQUEST"
	AuditActionUpgradeAdvance AuditAction = "UPGRADE_ADVANCE"
	AuditActionAccessDenied   AuditAction = "ACCESS_DENIED"
)

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	BusinessID   *uuid.UUID  `json:"business_id,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
