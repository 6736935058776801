package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tenant represents a store operator using the admin console
type Tenant struct {
	ID           uuid.UUID
	Name         string
	APIKeyHash   string
	APIKeyLookup string // SHA256(apiKey) hex for fast lookup; optional, set on create
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Customer is a storefront buyer of a tenant
type Customer struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	Name       string
	Email      *string
	TotalSpent int64 // cumulative spend in whole currency units
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// BusinessAccount is a marketplace shop connected through OAuth.
// Unique by (Platform, ShopID).
type BusinessAccount struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	Platform       Platform
	ShopID         string
	PartnerID      string
	ShopName       string
	Region         *string
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt *time.Time
	Status         ConnectionStatus
	LastSyncedAt   *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsConnected reports whether the account holds a token from a completed authorization
func (a *BusinessAccount) IsConnected() bool {
	return a.Status == ConnectionStatusConnected && a.AccessToken != ""
}

// ExpiresWithin reports whether the access token expires before now+window.
// An account without an expiry never expires.
func (a *BusinessAccount) ExpiresWithin(now time.Time, window time.Duration) bool {
	if a.TokenExpiresAt == nil {
		return false
	}
	return !a.TokenExpiresAt.After(now.Add(window))
}

// OAuthState correlates an outbound authorization redirect with its callback
type OAuthState struct {
	State        string
	TenantID     uuid.UUID
	Platform     Platform
	RedirectPath string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Expired reports whether the state can no longer be consumed
func (s *OAuthState) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// ShopProfile is the platform's view of a connected shop
type ShopProfile struct {
	ShopID string `json:"shop_id"`
	Name   string `json:"name"`
	Region string `json:"region,omitempty"`
	Status string `json:"status,omitempty"`
}

// MarketplaceOrder is an order read from a platform, normalized
type MarketplaceOrder struct {
	OrderID   string                 `json:"order_id"`
	Status    OrderStatus            `json:"status"`
	RawStatus string                 `json:"raw_status"`
	Total     string                 `json:"total,omitempty"`
	Currency  string                 `json:"currency,omitempty"`
	CreatedAt *time.Time             `json:"created_at,omitempty"`
	Raw       map[string]interface{} `json:"raw,omitempty"`
}

// IdempotencyRecord is the stored outcome of a mutating request sent with an
// Idempotency-Key header. Keys are scoped to a tenant.
type IdempotencyRecord struct {
	Key         string
	TenantID    uuid.UUID
	RequestHash string
	StatusCode  int
	Response    []byte
	CreatedAt   time.Time
}
