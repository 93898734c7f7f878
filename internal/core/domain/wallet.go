package domain

import (
	"time"

	"github.com/google/uuid"
)

// WalletStatus represents the lifecycle state of a phantom wallet.
type WalletStatus string

const (
	WalletStatusActive    WalletStatus = "active"
	WalletStatusSuspended WalletStatus = "suspended"
	WalletStatusUpgraded  WalletStatus = "upgraded"
	WalletStatusClosed    WalletStatus = "closed"
)

// IsTerminal returns true for states that never change again.
func (s WalletStatus) IsTerminal() bool {
	return s == WalletStatusUpgraded || s == WalletStatusClosed
}

// IsValid reports whether s is a known status.
func (s WalletStatus) IsValid() bool {
	switch s {
	case WalletStatusActive, WalletStatusSuspended, WalletStatusUpgraded, WalletStatusClosed:
		return true
	}
	return false
}

// Wallet is a virtual account held by a business on behalf of an unbanked customer.
// Balance is in minor units of the deployment currency and never negative.
type Wallet struct {
	ID               uuid.UUID    `json:"id"`
	BusinessID       uuid.UUID    `json:"business_id"`
	CustomerName     string       `json:"customer_name"`
	CustomerPhone    string       `json:"customer_phone"`
	CustomerEmail    *string      `json:"customer_email,omitempty"`
	Balance          int64        `json:"balance"`
	Currency         string       `json:"currency"`
	DailyLimit       int64        `json:"daily_limit"`   // 0 = unlimited
	MonthlyLimit     int64        `json:"monthly_limit"` // 0 = unlimited
	Status           WalletStatus `json:"status"`
	AccessToken      string       `json:"access_token"`
	LinkedAccountRef *string      `json:"linked_account_ref,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// CanTransact returns true if the wallet accepts credits and debits.
func (w *Wallet) CanTransact() bool {
	return w.Status == WalletStatusActive
}

// CanTransitionTo reports whether the wallet may move from its current status to next.
func (w *Wallet) CanTransitionTo(next WalletStatus) bool {
	switch w.Status {
	case WalletStatusActive:
		return next == WalletStatusSuspended || next == WalletStatusUpgraded || next == WalletStatusClosed
	case WalletStatusSuspended:
		return next == WalletStatusActive || next == WalletStatusUpgraded || next == WalletStatusClosed
	}
	return false
}

// KYCSubject is the customer reference handed to the KYC provider.
func (w *Wallet) KYCSubject() string {
	return w.ID.String()
}
