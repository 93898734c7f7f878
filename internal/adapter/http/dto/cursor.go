package dto

import (
	"encoding/base64"
	"strings"
	"time"

	"phantom-ledger/internal/core/ports"
	"phantom-ledger/pkg/apperror"

	"github.com/google/uuid"
)

// EncodeCursor renders a history cursor as an opaque URL-safe token.
func EncodeCursor(c *ports.Cursor) string {
	if c == nil {
		return ""
	}
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by EncodeCursor. An empty token is the first page.
func DecodeCursor(token string) (*ports.Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, apperror.Validation("invalid cursor")
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil, apperror.Validation("invalid cursor")
	}
	createdAt, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, apperror.Validation("invalid cursor")
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, apperror.Validation("invalid cursor")
	}
	return &ports.Cursor{CreatedAt: createdAt, ID: parsed}, nil
}
