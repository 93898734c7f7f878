package domain

import "github.com/google/uuid"

// WalletRef addresses a wallet either by id or by access token.
type WalletRef struct {
	ID          *uuid.UUID `json:"id,omitempty"`
	AccessToken string     `json:"access_token,omitempty"`
}

// IsEmpty returns true when neither form is set.
func (r WalletRef) IsEmpty() bool {
	return r.ID == nil && r.AccessToken == ""
}

// ChannelPayload is a normalized payment request from any channel adapter.
type ChannelPayload struct {
	Channel    Channel
	Amount     int64
	Wallet     WalletRef
	Direction  Direction
	Reference  string
	Metadata   map[string]string
	BusinessID *uuid.UUID // scopes the lookup to the calling business when set
}
