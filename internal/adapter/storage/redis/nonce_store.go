package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const noncePrefix = "pwl:nonce:"

// NonceStore remembers the nonces of signed requests per scope (a business or
// a webhook provider).
// A nonce is claimed with SETNX and expires with the signature window.
type NonceStore struct {
	client goredis.Cmdable
}

// NewNonceStore creates a new Redis-backed nonce store.
func NewNonceStore(client goredis.Cmdable) *NonceStore {
	return &NonceStore{client: client}
}

func nonceKey(scope, nonce string) string {
	return noncePrefix + scope + ":" + nonce
}

// CheckAndSet claims nonce for scope. It reports false when the nonce was
// already claimed inside its ttl.
func (s *NonceStore) CheckAndSet(ctx context.Context, scope string, nonce string, ttl time.Duration) (bool, error) {
	if nonce == "" {
		return false, nil
	}
	claimed, err := s.client.SetNX(ctx, nonceKey(scope, nonce), time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim nonce for %s: %w", scope, err)
	}
	return claimed, nil
}
