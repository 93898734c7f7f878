package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus represents the delivery state of a settlement notification.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// SettlementDelivery records the outbox entry for one completed transaction.
// A failed delivery is a standing alert until a retry succeeds.
type SettlementDelivery struct {
	ID            uuid.UUID      `json:"id"`
	TransactionID uuid.UUID      `json:"transaction_id"`
	BusinessID    uuid.UUID      `json:"business_id"`
	Payload       string         `json:"payload"` // JSON encoded SettlementEvent
	Attempt       int            `json:"attempt"`
	Status        DeliveryStatus `json:"status"`
	SettlementRef *string        `json:"settlement_ref,omitempty"`
	NextRetryAt   *time.Time     `json:"next_retry_at,omitempty"`
	LastError     *string        `json:"last_error,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// SettlementEvent is the message handed to the settlement sink.
type SettlementEvent struct {
	EventID              string    `json:"event_id"`
	TransactionID        string    `json:"transaction_id"`
	Reference            string    `json:"reference"`
	WalletID             string    `json:"wallet_id"`
	BusinessID           string    `json:"business_id"`
	SettlementAccountRef string    `json:"settlement_account_ref"`
	Direction            Direction `json:"direction"`
	Kind                 string    `json:"kind"`
	Channel              Channel   `json:"channel"`
	Amount               int64     `json:"amount"`
	Currency             string    `json:"currency"`
	OccurredAt           time.Time `json:"occurred_at"`
}
