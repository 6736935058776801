package crypto

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCipher(t *testing.T) *TokenCipher {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)
	c, err := NewTokenCipher(key)
	require.NoError(t, err)
	require.NotNil(t, c)
	return c
}

func TestTokenCipherRoundTrip(t *testing.T) {
	c := newTestCipher(t)

	sealed, err := c.EncryptString("access-token-123")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, sealedPrefix))
	assert.NotContains(t, sealed, "access-token-123")

	plain, err := c.DecryptString(sealed)
	require.NoError(t, err)
	assert.Equal(t, "access-token-123", plain)
}

func TestTokenCipherUsesFreshNonce(t *testing.T) {
	c := newTestCipher(t)

	a, err := c.EncryptString("same")
	require.NoError(t, err)
	b, err := c.EncryptString("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestTokenCipherRejectsTampering(t *testing.T) {
	c := newTestCipher(t)

	sealed, err := c.EncryptString("refresh-token")
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	require.NoError(t, err)
	raw[len(raw)/2] ^= 0xff

	_, err = c.DecryptString(sealedPrefix + base64.RawURLEncoding.EncodeToString(raw))
	assert.Error(t, err)
}

func TestTokenCipherWrongKey(t *testing.T) {
	sealed, err := newTestCipher(t).EncryptString("token")
	require.NoError(t, err)

	_, err = newTestCipher(t).DecryptString(sealed)
	assert.Error(t, err)
}

func TestTokenCipherPassThrough(t *testing.T) {
	var c *TokenCipher

	out, err := c.EncryptString("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", out)

	out, err = c.DecryptString("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", out)

	_, err = c.DecryptString(sealedPrefix + "AAAA")
	assert.Error(t, err)

	// legacy plaintext rows are readable once a key is configured
	out, err = newTestCipher(t).DecryptString("legacy-token")
	require.NoError(t, err)
	assert.Equal(t, "legacy-token", out)
}

func TestNewTokenCipherValidation(t *testing.T) {
	c, err := NewTokenCipher("")
	require.NoError(t, err)
	assert.Nil(t, c)

	_, err = NewTokenCipher("not base64 !!")
	assert.Error(t, err)

	_, err = NewTokenCipher("c2hvcnQ=")
	assert.Error(t, err)
}
