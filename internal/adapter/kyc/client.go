// Package kyc queries the identity verification provider.
package kyc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"phantom-ledger/internal/adapter/collab"
	"phantom-ledger/internal/core/domain"
	"phantom-ledger/internal/core/ports"
)

var (
	_ ports.KYCService = (*Client)(nil)
	_ ports.KYCService = (*Fake)(nil)
)

type statusResponse struct {
	Status string `json:"status"`
}

// Client implements ports.KYCService over the provider's JSON API.
type Client struct {
	api *collab.Client
}

func NewClient(api *collab.Client) *Client {
	return &Client{api: api}
}

// Status returns the verification state of customerRef. A customer the
// provider has not seen yet is pending.
func (c *Client) Status(ctx context.Context, customerRef string) (domain.KYCStatus, error) {
	var out statusResponse
	err := c.api.Do(ctx, collab.Request{
		Method: http.MethodGet,
		Path:   "/v1/customers/" + url.PathEscape(customerRef) + "/verification",
	}, &out)
	if err != nil {
		var serr *collab.StatusError
		if errors.As(err, &serr) && serr.Status == http.StatusNotFound {
			return domain.KYCStatusPending, nil
		}
		return "", err
	}
	return ParseStatus(out.Status)
}

// ParseStatus maps provider wording onto domain.KYCStatus.
func ParseStatus(s string) (domain.KYCStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "verified", "approved", "complete", "completed":
		return domain.KYCStatusVerified, nil
	case "pending", "in_review", "submitted", "":
		return domain.KYCStatusPending, nil
	case "rejected", "declined", "failed":
		return domain.KYCStatusRejected, nil
	}
	return "", fmt.Errorf("kyc: unknown status %q", s)
}

// Fake is an in-process KYC provider. Unknown customers are pending.
type Fake struct {
	mu       sync.RWMutex
	statuses map[string]domain.KYCStatus
}

func NewFake() *Fake {
	return &Fake{statuses: make(map[string]domain.KYCStatus)}
}

// Set records the status the fake reports for customerRef.
func (f *Fake) Set(customerRef string, status domain.KYCStatus) {
	f.mu.Lock()
	f.statuses[customerRef] = status
	f.mu.Unlock()
}

func (f *Fake) Status(ctx context.Context, customerRef string) (domain.KYCStatus, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if s, ok := f.statuses[customerRef]; ok {
		return s, nil
	}
	return domain.KYCStatusPending, nil
}
