package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-jwt-secret-key-for-unit-tests"

func TestJWTTokenService_GenerateAndValidate(t *testing.T) {
	svc := NewJWTTokenService(testJWTSecret, 24*time.Hour, "phantom-ledger")
	businessID := uuid.New()

	tokenStr, expiresAt, err := svc.Generate(businessID, "owner@kgosi.co.bw")
	require.NoError(t, err)
	assert.NotEmpty(t, tokenStr)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := svc.Validate(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, businessID, claims.BusinessID)
	assert.Equal(t, "owner@kgosi.co.bw", claims.Email)
}

func TestJWTTokenService_ExpiredToken(t *testing.T) {
	svc := NewJWTTokenService(testJWTSecret, time.Hour, "phantom-ledger")
	tokenStr, _, err := svc.Generate(uuid.New(), "a@b.co")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.Validate(tokenStr)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestJWTTokenService_Rejections(t *testing.T) {
	svc := NewJWTTokenService(testJWTSecret, time.Hour, "phantom-ledger")

	other, _, err := NewJWTTokenService("secret-2", time.Hour, "phantom-ledger").Generate(uuid.New(), "a@b.co")
	require.NoError(t, err)
	foreign, _, err := NewJWTTokenService(testJWTSecret, time.Hour, "someone-else").Generate(uuid.New(), "a@b.co")
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": uuid.NewString()}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"different secret", other},
		{"different issuer", foreign},
		{"alg none", none},
		{"garbage", "not.a.valid.jwt"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Validate(tt.token)
			assert.Error(t, err)
		})
	}
}
