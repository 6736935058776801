package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// sealedPrefix marks values written by TokenCipher so that rows stored before
// encryption was enabled can still be read.
const sealedPrefix = "enc:v1:"

// TokenCipher encrypts marketplace tokens before they reach the database
type TokenCipher struct {
	key []byte
}

// NewTokenCipher creates a cipher from a base64 encoded 32-byte key.
// An empty key returns a nil cipher, which stores tokens as given.
func NewTokenCipher(encodedKey string) (*TokenCipher, error) {
	encodedKey = strings.TrimSpace(encodedKey)
	if encodedKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encryption key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &TokenCipher{key: key}, nil
}

// GenerateKey returns a new random key in the format NewTokenCipher accepts
func GenerateKey() (string, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// EncryptString seals plaintext with XChaCha20-Poly1305 and returns a prefixed base64 string
func (c *TokenCipher) EncryptString(plaintext string) (string, error) {
	if c == nil || plaintext == "" {
		return plaintext, nil
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// DecryptString opens a value produced by EncryptString. Values without the
// prefix are returned unchanged.
func (c *TokenCipher) DecryptString(value string) (string, error) {
	if !strings.HasPrefix(value, sealedPrefix) {
		return value, nil
	}
	if c == nil {
		return "", fmt.Errorf("encrypted token found but no encryption key configured")
	}

	sealed, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode token: %w", err)
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	if len(sealed) < aead.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt token: %w", err)
	}
	return string(plaintext), nil
}
