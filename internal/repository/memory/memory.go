// Package memory holds mutex-guarded in-process repositories. They back the
// "memory" storage driver and the service and handler tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jafarshop/sellerhub/internal/domain"
	"github.com/jafarshop/sellerhub/internal/repository"
	"github.com/jafarshop/sellerhub/pkg/errors"
)

// NewRepositories creates an empty in-memory repository set
func NewRepositories() *repository.Repositories {
	return &repository.Repositories{
		Tenant:          NewTenantRepository(),
		Customer:        NewCustomerRepository(),
		BusinessAccount: NewBusinessAccountRepository(),
		OAuthState:      NewOAuthStateRepository(),
		Idempotency:     NewIdempotencyRepository(),
	}
}

// TenantRepository stores tenants in memory
type TenantRepository struct {
	mu      sync.RWMutex
	tenants map[uuid.UUID]domain.Tenant
}

func NewTenantRepository() *TenantRepository {
	return &TenantRepository{tenants: make(map[uuid.UUID]domain.Tenant)}
}

func (r *TenantRepository) GetByAPIKey(_ context.Context, apiKey string) (*domain.Tenant, error) {
	lookup := repository.APIKeyLookupHash(apiKey)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tenants {
		if t.IsActive && t.APIKeyLookup == lookup && repository.VerifyAPIKey(apiKey, t.APIKeyHash) {
			t := t
			return &t, nil
		}
	}
	return nil, &errors.ErrUnauthorized{Message: "invalid API key"}
}

func (r *TenantRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "tenant", ID: id.String()}
	}
	return &t, nil
}

func (r *TenantRepository) List(_ context.Context) ([]*domain.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		t := t
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *TenantRepository) Create(_ context.Context, tenant *domain.Tenant) error {
	now := time.Now()
	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}
	if tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = now
	}
	if tenant.UpdatedAt.IsZero() {
		tenant.UpdatedAt = now
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants[tenant.ID] = *tenant
	return nil
}

func (r *TenantRepository) Update(_ context.Context, tenant *domain.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.tenants[tenant.ID]
	if !ok {
		return &errors.ErrNotFound{Resource: "tenant", ID: tenant.ID.String()}
	}
	tenant.UpdatedAt = time.Now()
	if tenant.APIKeyLookup == "" {
		tenant.APIKeyLookup = existing.APIKeyLookup
	}
	r.tenants[tenant.ID] = *tenant
	return nil
}

// CustomerRepository stores customers in memory
type CustomerRepository struct {
	mu        sync.RWMutex
	customers map[uuid.UUID]domain.Customer
}

func NewCustomerRepository() *CustomerRepository {
	return &CustomerRepository{customers: make(map[uuid.UUID]domain.Customer)}
}

func (r *CustomerRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.customers[id]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "customer", ID: id.String()}
	}
	return &c, nil
}

func (r *CustomerRepository) ListByTenantID(_ context.Context, tenantID uuid.UUID, limit, offset int) ([]*domain.Customer, error) {
	r.mu.RLock()
	var out []*domain.Customer
	for _, c := range r.customers {
		if c.TenantID == tenantID {
			c := c
			out = append(out, &c)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *CustomerRepository) Create(_ context.Context, customer *domain.Customer) error {
	now := time.Now()
	if customer.ID == uuid.Nil {
		customer.ID = uuid.New()
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = now
	}
	customer.UpdatedAt = now
	r.mu.Lock()
	defer r.mu.Unlock()
	r.customers[customer.ID] = *customer
	return nil
}

func (r *CustomerRepository) AddSpend(_ context.Context, id uuid.UUID, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.customers[id]
	if !ok {
		return &errors.ErrNotFound{Resource: "customer", ID: id.String()}
	}
	c.TotalSpent += amount
	if c.TotalSpent < 0 {
		c.TotalSpent = 0
	}
	c.UpdatedAt = time.Now()
	r.customers[id] = c
	return nil
}

type accountKey struct {
	platform domain.Platform
	shopID   string
}

// BusinessAccountRepository stores marketplace accounts in memory
type BusinessAccountRepository struct {
	mu       sync.RWMutex
	accounts map[accountKey]domain.BusinessAccount
}

func NewBusinessAccountRepository() *BusinessAccountRepository {
	return &BusinessAccountRepository{accounts: make(map[accountKey]domain.BusinessAccount)}
}

func (r *BusinessAccountRepository) GetByShopID(_ context.Context, platform domain.Platform, shopID string) (*domain.BusinessAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[accountKey{platform, shopID}]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "business account", ID: shopID}
	}
	return &a, nil
}

func (r *BusinessAccountRepository) filter(keep func(a *domain.BusinessAccount) bool) []*domain.BusinessAccount {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.BusinessAccount
	for _, a := range r.accounts {
		a := a
		if keep(&a) {
			out = append(out, &a)
		}
	}
	return out
}

func (r *BusinessAccountRepository) ListByTenantID(_ context.Context, tenantID uuid.UUID, platform domain.Platform) ([]*domain.BusinessAccount, error) {
	out := r.filter(func(a *domain.BusinessAccount) bool {
		return a.TenantID == tenantID && a.Platform == platform
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *BusinessAccountRepository) ListExpiring(_ context.Context, platform domain.Platform, before time.Time) ([]*domain.BusinessAccount, error) {
	out := r.filter(func(a *domain.BusinessAccount) bool {
		return a.Platform == platform &&
			a.Status == domain.ConnectionStatusConnected &&
			a.TokenExpiresAt != nil &&
			!a.TokenExpiresAt.After(before)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].TokenExpiresAt.Before(*out[j].TokenExpiresAt) })
	return out, nil
}

func (r *BusinessAccountRepository) Upsert(_ context.Context, account *domain.BusinessAccount) error {
	now := time.Now()
	if account.Status == "" {
		account.Status = domain.ConnectionStatusConnected
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	key := accountKey{account.Platform, account.ShopID}
	if existing, ok := r.accounts[key]; ok {
		existing.AccessToken = account.AccessToken
		existing.RefreshToken = account.RefreshToken
		existing.TokenExpiresAt = account.TokenExpiresAt
		existing.Status = account.Status
		existing.UpdatedAt = now
		r.accounts[key] = existing
		*account = existing
		return nil
	}

	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	account.CreatedAt = now
	account.UpdatedAt = now
	r.accounts[key] = *account
	return nil
}

func (r *BusinessAccountRepository) update(platform domain.Platform, shopID string, fn func(a *domain.BusinessAccount)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := accountKey{platform, shopID}
	a, ok := r.accounts[key]
	if !ok {
		return &errors.ErrNotFound{Resource: "business account", ID: shopID}
	}
	fn(&a)
	a.UpdatedAt = time.Now()
	r.accounts[key] = a
	return nil
}

func (r *BusinessAccountRepository) UpdateTokens(_ context.Context, platform domain.Platform, shopID, accessToken, refreshToken string, expiresAt *time.Time) error {
	return r.update(platform, shopID, func(a *domain.BusinessAccount) {
		a.AccessToken = accessToken
		a.RefreshToken = refreshToken
		a.TokenExpiresAt = expiresAt
		a.Status = domain.ConnectionStatusConnected
	})
}

func (r *BusinessAccountRepository) UpdateProfile(_ context.Context, platform domain.Platform, shopID string, profile *domain.ShopProfile, syncedAt time.Time) error {
	return r.update(platform, shopID, func(a *domain.BusinessAccount) {
		if profile != nil && profile.Name != "" {
			a.ShopName = profile.Name
		}
		if profile != nil && profile.Region != "" {
			region := profile.Region
			a.Region = &region
		}
		a.LastSyncedAt = &syncedAt
	})
}

func (r *BusinessAccountRepository) MarkDisconnected(_ context.Context, platform domain.Platform, shopID string) error {
	return r.update(platform, shopID, func(a *domain.BusinessAccount) {
		a.AccessToken = ""
		a.RefreshToken = ""
		a.TokenExpiresAt = nil
		a.Status = domain.ConnectionStatusDisconnected
	})
}

// OAuthStateRepository stores pending authorization flows in memory
type OAuthStateRepository struct {
	mu     sync.Mutex
	states map[string]domain.OAuthState
}

func NewOAuthStateRepository() *OAuthStateRepository {
	return &OAuthStateRepository{states: make(map[string]domain.OAuthState)}
}

func (r *OAuthStateRepository) Save(_ context.Context, state *domain.OAuthState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state.State] = *state
	return nil
}

func (r *OAuthStateRepository) Consume(_ context.Context, state string, now time.Time) (*domain.OAuthState, error) {
	r.mu.Lock()
	s, ok := r.states[state]
	delete(r.states, state)
	r.mu.Unlock()

	if !ok {
		return nil, &errors.ErrInvalidState{Reason: "unknown or already used"}
	}
	if s.Expired(now) {
		return nil, &errors.ErrInvalidState{Reason: "expired"}
	}
	return &s, nil
}

func (r *OAuthStateRepository) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, s := range r.states {
		if s.Expired(now) {
			delete(r.states, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of pending states
func (r *OAuthStateRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

type idempotencyKey struct {
	tenantID uuid.UUID
	key      string
}

// IdempotencyRepository stores replayable responses in memory
type IdempotencyRepository struct {
	mu      sync.Mutex
	records map[idempotencyKey]domain.IdempotencyRecord
}

func NewIdempotencyRepository() *IdempotencyRepository {
	return &IdempotencyRepository{records: make(map[idempotencyKey]domain.IdempotencyRecord)}
}

func (r *IdempotencyRepository) Get(_ context.Context, tenantID uuid.UUID, key string) (*domain.IdempotencyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[idempotencyKey{tenantID, key}]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r *IdempotencyRepository) Create(_ context.Context, record *domain.IdempotencyRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := idempotencyKey{record.TenantID, record.Key}
	// first writer wins, matching ON CONFLICT DO NOTHING
	if _, ok := r.records[k]; !ok {
		r.records[k] = *record
	}
	return nil
}

func (r *IdempotencyRepository) PurgeOlderThan(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, rec := range r.records {
		if rec.CreatedAt.Before(before) {
			delete(r.records, k)
			n++
		}
	}
	return n, nil
}
