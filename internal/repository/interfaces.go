package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jafarshop/sellerhub/internal/domain"
)

// TenantRepository defines tenant data access methods
type TenantRepository interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*domain.Tenant, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error)
	List(ctx context.Context) ([]*domain.Tenant, error)
	Create(ctx context.Context, tenant *domain.Tenant) error
	Update(ctx context.Context, tenant *domain.Tenant) error
}

// CustomerRepository defines storefront customer data access methods
type CustomerRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Customer, error)
	ListByTenantID(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*domain.Customer, error)
	Create(ctx context.Context, customer *domain.Customer) error
	AddSpend(ctx context.Context, id uuid.UUID, amount int64) error
}

// BusinessAccountRepository defines marketplace account data access methods.
// Accounts are keyed by (platform, shop id).
type BusinessAccountRepository interface {
	GetByShopID(ctx context.Context, platform domain.Platform, shopID string) (*domain.BusinessAccount, error)
	ListByTenantID(ctx context.Context, tenantID uuid.UUID, platform domain.Platform) ([]*domain.BusinessAccount, error)
	// ListExpiring returns connected accounts whose token expires before the given time
	ListExpiring(ctx context.Context, platform domain.Platform, before time.Time) ([]*domain.BusinessAccount, error)
	// Upsert inserts the account or, on conflict, overwrites tokens, expiry and
	// status only
	Upsert(ctx context.Context, account *domain.BusinessAccount) error
	UpdateTokens(ctx context.Context, platform domain.Platform, shopID, accessToken, refreshToken string, expiresAt *time.Time) error
	UpdateProfile(ctx context.Context, platform domain.Platform, shopID string, profile *domain.ShopProfile, syncedAt time.Time) error
	// MarkDisconnected clears tokens and keeps the row
	MarkDisconnected(ctx context.Context, platform domain.Platform, shopID string) error
}

// OAuthStateRepository stores pending authorization flows
type OAuthStateRepository interface {
	Save(ctx context.Context, state *domain.OAuthState) error
	// Consume deletes and returns the state. Missing or expired states fail
	// with *errors.ErrInvalidState.
	Consume(ctx context.Context, state string, now time.Time) (*domain.OAuthState, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// IdempotencyRepository stores replayable responses of mutating requests
type IdempotencyRepository interface {
	// Get returns nil, nil when the key is unknown
	Get(ctx context.Context, tenantID uuid.UUID, key string) (*domain.IdempotencyRecord, error)
	Create(ctx context.Context, record *domain.IdempotencyRecord) error
	PurgeOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// Repositories aggregates all repositories
type Repositories struct {
	Tenant          TenantRepository
	Customer        CustomerRepository
	BusinessAccount BusinessAccountRepository
	OAuthState      OAuthStateRepository
	Idempotency     IdempotencyRepository
}
