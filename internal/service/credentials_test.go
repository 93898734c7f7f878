package service

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAESKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

// cheap parameters keep the suite fast
var testArgon2 = Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

func TestArgon2HashService(t *testing.T) {
	svc := NewArgon2HashServiceWithParams(testArgon2)

	hash, err := svc.Hash("SecureP@ssw0rd!")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$"))

	ok, err := svc.Verify("SecureP@ssw0rd!", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Verify("wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	other, err := svc.Hash("SecureP@ssw0rd!")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "salts differ")

	// hashes made with other costs still verify
	ok, err = NewArgon2HashService().Verify("SecureP@ssw0rd!", hash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestArgon2HashService_MalformedHash(t *testing.T) {
	svc := NewArgon2HashServiceWithParams(testArgon2)
	for _, h := range []string{
		"",
		"plain",
		"$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=16$m=1,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=x,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=1,t=1,p=1$!!$aGFzaA",
	} {
		_, err := svc.Verify("pw", h)
		assert.Error(t, err, h)
	}
}

func TestAESEncryptionService(t *testing.T) {
	_, err := NewAESEncryptionService("shortkey")
	assert.Error(t, err)
	_, err = NewAESEncryptionService(strings.Repeat("zz", 32))
	assert.Error(t, err)

	svc, err := NewAESEncryptionService(testAESKey)
	require.NoError(t, err)

	c1, err := svc.Encrypt("business-secret")
	require.NoError(t, err)
	c2, err := svc.Encrypt("business-secret")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(c1, "v1."))
	assert.NotEqual(t, c1, c2, "nonces differ")

	plain, err := svc.Decrypt(c1)
	require.NoError(t, err)
	assert.Equal(t, "business-secret", plain)

	other, err := NewAESEncryptionService(strings.Repeat("ab", 32))
	require.NoError(t, err)
	_, err = other.Decrypt(c1)
	assert.Error(t, err, "wrong key")

	mid := len(c1) / 2
	flip := byte('A')
	if c1[mid] == 'A' {
		flip = 'B'
	}
	tampered := c1[:mid] + string(flip) + c1[mid+1:]
	_, err = svc.Decrypt(tampered)
	assert.Error(t, err)

	for _, bad := range []string{"", "v1.", "v1.@@@", "v2." + c1[3:], c1[3:]} {
		_, err = svc.Decrypt(bad)
		assert.Error(t, err, bad)
	}
}

func TestHMACSignatureService(t *testing.T) {
	svc := NewHMACSignatureService()
	payload := svc.BuildCanonicalString("post", "/api/v1/channel/payments", 1708092000, "n-1", `{"amount":"10.00"}`)

	digest := sha256.Sum256([]byte(`{"amount":"10.00"}`))
	assert.Equal(t, "POST\n/api/v1/channel/payments\n1708092000\nn-1\n"+hex.EncodeToString(digest[:]), payload)

	sig := svc.Sign("secret", payload)
	assert.Regexp(t, `^[0-9a-f]{64}$`, sig)
	assert.Equal(t, sig, svc.Sign("secret", payload))
	assert.True(t, svc.Verify("secret", payload, sig))
	assert.True(t, svc.Verify("secret", payload, strings.ToUpper(sig)))
	assert.False(t, svc.Verify("other", payload, sig))
	assert.False(t, svc.Verify("secret", payload+"x", sig))
	assert.False(t, svc.Verify("secret", payload, "deadbeef"))

	empty := svc.BuildCanonicalString("GET", "/api/v1/channel/wallets/123456", 1, "n", "")
	assert.True(t, strings.HasSuffix(empty, "\ne3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"))
}
