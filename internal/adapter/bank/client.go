// Package bank talks to the partner bank that opens real accounts for
// upgraded wallet holders.
package bank

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"phantom-ledger/internal/adapter/collab"
	"phantom-ledger/internal/core/ports"
)

var _ ports.BankAccountService = (*Client)(nil)

type createAccountRequest struct {
	CustomerRef string  `json:"customer_ref"`
	BusinessRef string  `json:"business_ref"`
	Name        string  `json:"name"`
	Phone       string  `json:"phone"`
	Email       *string `json:"email,omitempty"`
}

type createAccountResponse struct {
	AccountRef string `json:"account_ref"`
}

type transferRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type transferResponse struct {
	TransferRef string `json:"transfer_ref"`
}

// Client implements ports.BankAccountService over the bank's JSON API.
type Client struct {
	api      *collab.Client
	currency string
}

// NewClient creates a bank client. Amounts are sent in minor units of currency.
func NewClient(api *collab.Client, currency string) *Client {
	return &Client{api: api, currency: currency}
}

// CreateAccount opens an account for the wallet holder.
func (c *Client) CreateAccount(ctx context.Context, customer ports.CustomerInfo, idempotencyKey string) (string, error) {
	var out createAccountResponse
	err := c.api.Do(ctx, collab.Request{
		Method:         http.MethodPost,
		Path:           "/v1/accounts",
		IdempotencyKey: idempotencyKey,
		Body: createAccountRequest{
			CustomerRef: customer.WalletID.String(),
			BusinessRef: customer.BusinessID.String(),
			Name:        customer.Name,
			Phone:       customer.Phone,
			Email:       customer.Email,
		},
	}, &out)
	if err != nil {
		return "", err
	}
	if out.AccountRef == "" {
		return "", errors.New("bank: empty account_ref")
	}
	return out.AccountRef, nil
}

// TransferIn moves amount into accountRef.
func (c *Client) TransferIn(ctx context.Context, accountRef string, amount int64, idempotencyKey string) (string, error) {
	var out transferResponse
	err := c.api.Do(ctx, collab.Request{
		Method:         http.MethodPost,
		Path:           "/v1/accounts/" + url.PathEscape(accountRef) + "/transfers",
		IdempotencyKey: idempotencyKey,
		Body:           transferRequest{Amount: amount, Currency: c.currency},
	}, &out)
	if err != nil {
		return "", err
	}
	if out.TransferRef == "" {
		return "", errors.New("bank: empty transfer_ref")
	}
	return out.TransferRef, nil
}
