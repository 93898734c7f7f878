package domain

import (
	"time"

	"github.com/google/uuid"
)

// BusinessStatus represents the state of a business account.
type BusinessStatus string

const (
	BusinessStatusActive    BusinessStatus = "active"
	BusinessStatusSuspended BusinessStatus = "suspended"
)

// Business owns phantom wallets and settles collected funds to its bank account.
// Volume and counts are derived from transactions, never stored here.
type Business struct {
	ID                   uuid.UUID      `json:"id"`
	Name                 string         `json:"name"`
	Email                string         `json:"email"`
	Phone                string         `json:"phone"`
	SettlementAccountRef string         `json:"settlement_account_ref"`
	PasswordHash         string         `json:"-"`
	AccessKey            string         `json:"access_key"`
	SecretKeyEnc         string         `json:"-"` // AES-GCM encrypted HMAC secret
	Status               BusinessStatus `json:"status"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// IsActive returns true if the business may operate its wallets.
func (b *Business) IsActive() bool {
	return b.Status == BusinessStatusActive
}
