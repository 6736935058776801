package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/jafarshop/sellerhub/internal/domain"
	"github.com/jafarshop/sellerhub/pkg/errors"
)

// apiKeyCost is lower than a password cost; keys are long random strings
const apiKeyCost = 10

// APIKeyLookupHash is the SHA256 hex of an API key, stored for indexed lookup
func APIKeyLookupHash(apiKey string) string {
	h := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(h[:])
}

// HashAPIKey hashes an API key using bcrypt
func HashAPIKey(apiKey string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), apiKeyCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyAPIKey verifies an API key against a bcrypt hash
func VerifyAPIKey(apiKey, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(apiKey)) == nil
}

// NewTenant builds an active tenant that stores only hashes of apiKey. Both
// values are trimmed since AuthMiddleware trims the Bearer token.
func NewTenant(name, apiKey string) (*domain.Tenant, error) {
	name = strings.TrimSpace(name)
	apiKey = strings.TrimSpace(apiKey)
	if name == "" || apiKey == "" {
		return nil, &errors.ErrValidation{
			Message: "tenant name and API key are required",
			Fields:  map[string]string{"name": "required", "api_key": "required"},
		}
	}
	hash, err := HashAPIKey(apiKey)
	if err != nil {
		return nil, err
	}
	return &domain.Tenant{
		Name:         name,
		APIKeyHash:   hash,
		APIKeyLookup: APIKeyLookupHash(apiKey),
		IsActive:     true,
	}, nil
}

// SeedTenant creates a tenant for apiKey unless one already answers to it
func SeedTenant(ctx context.Context, repo TenantRepository, name, apiKey string) (*domain.Tenant, error) {
	if existing, err := repo.GetByAPIKey(ctx, strings.TrimSpace(apiKey)); err == nil {
		return existing, nil
	}
	tenant, err := NewTenant(name, apiKey)
	if err != nil {
		return nil, err
	}
	if err := repo.Create(ctx, tenant); err != nil {
		return nil, err
	}
	return tenant, nil
}
