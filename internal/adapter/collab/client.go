// Package collab holds the JSON-over-HTTP plumbing shared by the external
// collaborator clients (bank, KYC, settlement notifier).
package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError is a non-2xx collaborator response.
type StatusError struct {
	Service string
	Status  int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s responded %d: %s", e.Service, e.Status, e.Body)
}

// Retryable reports whether a later attempt may succeed.
func (e *StatusError) Retryable() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests || e.Status == http.StatusRequestTimeout
}

// Client sends JSON requests to one collaborator.
type Client struct {
	service string
	baseURL string
	apiKey  string
	http    HTTPDoer
	headers map[string]string
}

// NewClient builds a client. A nil doer gets an *http.Client with timeout.
func NewClient(service, baseURL, apiKey string, timeout time.Duration, doer HTTPDoer) *Client {
	if doer == nil {
		doer = &http.Client{Timeout: timeout}
	}
	return &Client{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    doer,
	}
}

// Service is the collaborator name used in errors and logs.
func (c *Client) Service() string { return c.service }

// Request describes one call.
type Request struct {
	Method         string
	Path           string
	IdempotencyKey string
	Headers        map[string]string
	Body           any
	RawBody        []byte // sent verbatim when set
}

// Do sends req and decodes a 2xx JSON response into out (which may be nil).
// Client errors other than 408 and 429 are wrapped with backoff.Permanent so
// retry loops give up on them immediately.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	body := req.RawBody
	if body == nil && req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%s: encode request: %w", c.service, err))
		}
		body = b
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("%s: build request: %w", c.service, err))
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("X-API-Key", c.apiKey)
	}
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: %w", c.service, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", c.service, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		serr := &StatusError{Service: c.service, Status: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
		if serr.Retryable() {
			return serr
		}
		return backoff.Permanent(serr)
	}

	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return backoff.Permanent(fmt.Errorf("%s: decode response: %w", c.service, err))
	}
	return nil
}
