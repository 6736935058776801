package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jafarshop/sellerhub/internal/domain"
	"github.com/jafarshop/sellerhub/internal/marketplace"
	"github.com/jafarshop/sellerhub/internal/repository"
	"github.com/jafarshop/sellerhub/internal/repository/memory"
	"github.com/jafarshop/sellerhub/pkg/errors"
)

const testShopID = "5001"

type brokerFixture struct {
	provider *fakeProvider
	repos    *repository.Repositories
	broker   *TokenBroker
	hits     *atomic.Int32
	tenantID uuid.UUID
}

// newBrokerFixture wires a broker to a fake platform API whose handler is h
func newBrokerFixture(t *testing.T, h http.HandlerFunc) *brokerFixture {
	t.Helper()
	hits := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	provider := newFakeProvider(srv.URL)
	repos := memory.NewRepositories()
	return &brokerFixture{
		provider: provider,
		repos:    repos,
		broker:   NewTokenBroker(provider, repos.BusinessAccount, BrokerOptions{}),
		hits:     hits,
		tenantID: uuid.New(),
	}
}

func okHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}
}

func (f *brokerFixture) seed(t *testing.T, expiresIn time.Duration) {
	t.Helper()
	var expiresAt *time.Time
	if expiresIn != 0 {
		e := time.Now().Add(expiresIn)
		expiresAt = &e
	}
	require.NoError(t, f.repos.BusinessAccount.Upsert(context.Background(), &domain.BusinessAccount{
		TenantID:       f.tenantID,
		Platform:       domain.PlatformShopee,
		ShopID:         testShopID,
		ShopName:       "Lotus Tea",
		AccessToken:    "access-old",
		RefreshToken:   "refresh-old",
		TokenExpiresAt: expiresAt,
		Status:         domain.ConnectionStatusConnected,
	}))
}

func (f *brokerFixture) account(t *testing.T) *domain.BusinessAccount {
	t.Helper()
	a, err := f.repos.BusinessAccount.GetByShopID(context.Background(), domain.PlatformShopee, testShopID)
	require.NoError(t, err)
	return a
}

func TestGenerateAuthURL(t *testing.T) {
	f := newBrokerFixture(t, okHandler(`{}`))
	u, err := f.broker.GenerateAuthURL("abc")
	require.NoError(t, err)
	assert.Contains(t, u, "state=abc")
}

func TestExchangeCodeForToken(t *testing.T) {
	f := newBrokerFixture(t, okHandler(`{}`))
	before := time.Now()

	result, err := f.broker.ExchangeCodeForToken(context.Background(), "c1", testShopID)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "access-c1", result.AccessToken)
	assert.Equal(t, "refresh-c1", result.RefreshToken)
	require.NotNil(t, result.ExpiresAt)
	assert.WithinDuration(t, before.Add(4*time.Hour), *result.ExpiresAt, 5*time.Second)
}

func TestExchangeCodeForTokenWithoutTTL(t *testing.T) {
	f := newBrokerFixture(t, okHandler(`{}`))
	f.provider.exchangeTokens = &marketplace.TokenSet{AccessToken: "a", RefreshToken: "r", ShopID: testShopID}

	result, err := f.broker.ExchangeCodeForToken(context.Background(), "c1", testShopID)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Nil(t, result.ExpiresAt)
}

func TestExchangeCodeForTokenRejected(t *testing.T) {
	f := newBrokerFixture(t, okHandler(`{}`))
	f.provider.exchangeErr = &errors.ErrProvider{Platform: domain.PlatformShopee, Op: "exchange code", Code: "error_auth", Message: "invalid code"}

	result, err := f.broker.ExchangeCodeForToken(context.Background(), "bad", testShopID)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "invalid code")
	assert.Empty(t, result.AccessToken)
}

func TestExchangeCodeForTokenMissingCode(t *testing.T) {
	f := newBrokerFixture(t, okHandler(`{}`))

	result, err := f.broker.ExchangeCodeForToken(context.Background(), "", testShopID)
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestExchangeCodeForTokenTransportFailure(t *testing.T) {
	f := newBrokerFixture(t, okHandler(`{}`))
	f.provider.exchangeErr = &errors.ErrTransport{Platform: domain.PlatformShopee, Op: "exchange code", Err: context.DeadlineExceeded}

	result, err := f.broker.ExchangeCodeForToken(context.Background(), "c1", testShopID)
	assert.Nil(t, result)
	var terr *errors.ErrTransport
	assert.ErrorAs(t, err, &terr)
}

func TestStoreBusinessAccountReconnectKeepsProfile(t *testing.T) {
	f := newBrokerFixture(t, okHandler(`{}`))
	ctx := context.Background()

	first, err := f.broker.ExchangeCodeForToken(ctx, "c1", testShopID)
	require.NoError(t, err)
	stored, err := f.broker.StoreBusinessAccount(ctx, f.tenantID, first, &domain.ShopProfile{Name: "Lotus Tea", Region: "VN"})
	require.NoError(t, err)
	assert.Equal(t, "2001", stored.PartnerID)
	require.NoError(t, f.broker.DisconnectShop(ctx, testShopID))

	second, err := f.broker.ExchangeCodeForToken(ctx, "c2", testShopID)
	require.NoError(t, err)
	_, err = f.broker.StoreBusinessAccount(ctx, uuid.New(), second, &domain.ShopProfile{Name: "Renamed"})
	require.NoError(t, err)

	a := f.account(t)
	assert.Equal(t, "access-c2", a.AccessToken)
	assert.Equal(t, domain.ConnectionStatusConnected, a.Status)
	assert.Equal(t, "Lotus Tea", a.ShopName)
	assert.Equal(t, f.tenantID, a.TenantID)
	require.NotNil(t, a.Region)
	assert.Equal(t, "VN", *a.Region)
}

func TestStoreBusinessAccountRequiresSuccess(t *testing.T) {
	f := newBrokerFixture(t, okHandler(`{}`))

	_, err := f.broker.StoreBusinessAccount(context.Background(), f.tenantID, &TokenResult{Success: false}, nil)
	var verr *errors.ErrValidation
	assert.ErrorAs(t, err, &verr)
}

func TestEnsureValidTokenUnknownShop(t *testing.T) {
	f := newBrokerFixture(t, okHandler(`{}`))

	token, err := f.broker.EnsureValidToken(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestEnsureValidTokenFreshToken(t *testing.T) {
	f := newBrokerFixture(t, okHandler(`{}`))
	f.seed(t, time.Hour)

	token, err := f.broker.EnsureValidToken(context.Background(), testShopID)
	require.NoError(t, err)
	assert.Equal(t, "access-old", token)
	assert.Zero(t, f.provider.refreshCalls.Load())
}

func TestEnsureValidTokenWithoutExpiry(t *testing.T) {
	f := newBrokerFixture(t, okHandler(`{}`))
	f.seed(t, 0)

	token, err := f.broker.EnsureValidToken(context.Background(), testShopID)
	require.NoError(t, err)
	assert.Equal(t, "access-old", token)
	assert.Zero(t, f.provider.refreshCalls.Load())
}

func TestEnsureValidTokenRefreshesInsideWindow(t *testing.T) {
	f := newBrokerFixture(t, okHandler(`{}`))
	f.seed(t, 2*time.Minute)

	token, err := f.broker.EnsureValidToken(context.Background(), testShopID)
	require.NoError(t, err)
	assert.Equal(t, "access-r1", token)

	a := f.account(t)
	assert.Equal(t, "access-r1", a.AccessToken)
	assert.Equal(t, "refresh-r1", a.RefreshToken)
	require.NotNil(t, a.TokenExpiresAt)
	assert.True(t, a.TokenExpiresAt.After(time.Now().Add(time.Hour)))

	// the new token is outside the window, so no second refresh
	token, err = f.broker.EnsureValidToken(context.Background(), testShopID)
	require.NoError(t, err)
	assert.Equal(t, "access-r1", token)
	assert.Equal(t, int32(1), f.provider.refreshCalls.Load())
}

func TestEnsureValidTokenConcurrentCallersShareRefresh(t *testing.T) {
	f := newBrokerFixture(t, okHandler(`{}`))
	f.provider.refreshDelay = 50 * time.Millisecond
	f.seed(t, -time.Minute)

	const callers = 16
	tokens := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := f.broker.EnsureValidToken(context.Background(), testShopID)
			assert.NoError(t, err)
			tokens[i] = tok
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.provider.refreshCalls.Load())
	for _, tok := range tokens {
		assert.Equal(t, "access-r1", tok)
	}
}

func TestEnsureValidTokenRefreshRejectedDisconnects(t *testing.T) {
	f := newBrokerFixture(t, okHandler(`{}`))
	f.provider.refreshErr = &errors.ErrProvider{Platform: domain.PlatformShopee, Op: "refresh token", Code: "error_auth"}
	f.seed(t, time.Minute)

	token, err := f.broker.EnsureValidToken(context.Background(), testShopID)
	require.NoError(t, err)
	assert.Empty(t, token)

	a := f.account(t)
	assert.Equal(t, domain.ConnectionStatusDisconnected, a.Status)
	assert.Empty(t, a.AccessToken)
	assert.Empty(t, a.RefreshToken)
	assert.Equal(t, "Lotus Tea", a.ShopName)
}

func TestEnsureValidTokenRefreshTransportFailureKeepsAccount(t *testing.T) {
	f := newBrokerFixture(t, okHandler(`{}`))
	f.provider.refreshErr = &errors.ErrTransport{Platform: domain.PlatformShopee, Op: "refresh token", Err: context.DeadlineExceeded}
	f.seed(t, time.Minute)

	token, err := f.broker.EnsureValidToken(context.Background(), testShopID)
	require.NoError(t, err)
	assert.Empty(t, token)

	a := f.account(t)
	assert.Equal(t, domain.ConnectionStatusConnected, a.Status)
	assert.Equal(t, "access-old", a.AccessToken)
	assert.Equal(t, "refresh-old", a.RefreshToken)
}

func TestEnsureValidTokenDisconnectedShop(t *testing.T) {
	f := newBrokerFixture(t, okHandler(`{}`))
	f.seed(t, time.Hour)
	require.NoError(t, f.broker.DisconnectShop(context.Background(), testShopID))

	token, err := f.broker.EnsureValidToken(context.Background(), testShopID)
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestMakeAuthenticatedRequest(t *testing.T) {
	var gotToken, gotShop string
	f := newBrokerFixture(t, func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Access-Token")
		gotShop = r.Header.Get("X-Shop-Id")
		_, _ = w.Write([]byte(`{"response":{"ok":true}}`))
	})
	f.seed(t, time.Hour)

	body, err := f.broker.MakeAuthenticatedRequest(context.Background(), testShopID, marketplace.APICall{Method: http.MethodGet, Endpoint: "/shop"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"response":{"ok":true}}`, string(body))
	assert.Equal(t, "access-old", gotToken)
	assert.Equal(t, testShopID, gotShop)
}

func TestMakeAuthenticatedRequestWithoutTokenFailsFast(t *testing.T) {
	f := newBrokerFixture(t, okHandler(`{}`))

	_, err := f.broker.MakeAuthenticatedRequest(context.Background(), testShopID, marketplace.APICall{Method: http.MethodGet, Endpoint: "/shop"})
	var reauth *errors.ErrReauthorizationRequired
	require.ErrorAs(t, err, &reauth)
	assert.Equal(t, testShopID, reauth.ShopID)
	assert.Zero(t, f.hits.Load())
}

func TestMakeAuthenticatedRequestProviderErrorPayload(t *testing.T) {
	f := newBrokerFixture(t, okHandler(`{"error":"invalid_access_token"}`))
	f.seed(t, time.Hour)

	_, err := f.broker.MakeAuthenticatedRequest(context.Background(), testShopID, marketplace.APICall{Method: http.MethodGet, Endpoint: "/shop"})
	var perr *errors.ErrProvider
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "invalid_access_token", perr.Code)
}

func TestMakeAuthenticatedRequestNon2xx(t *testing.T) {
	f := newBrokerFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	f.seed(t, time.Hour)

	_, err := f.broker.MakeAuthenticatedRequest(context.Background(), testShopID, marketplace.APICall{Method: http.MethodGet, Endpoint: "/shop"})
	var perr *errors.ErrProvider
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusServiceUnavailable, perr.StatusCode)
	assert.Equal(t, "Service Unavailable", perr.Message)
}

func TestMakeAuthenticatedRequestTransportFailure(t *testing.T) {
	f := newBrokerFixture(t, okHandler(`{}`))
	f.provider.baseURL = "http://127.0.0.1:1"
	f.seed(t, time.Hour)

	_, err := f.broker.MakeAuthenticatedRequest(context.Background(), testShopID, marketplace.APICall{Method: http.MethodGet, Endpoint: "/shop"})
	var terr *errors.ErrTransport
	assert.ErrorAs(t, err, &terr)
}

func TestRefreshExpiring(t *testing.T) {
	f := newBrokerFixture(t, okHandler(`{}`))
	f.seed(t, time.Minute)

	n, err := f.broker.RefreshExpiring(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(1), f.provider.refreshCalls.Load())

	n, err = f.broker.RefreshExpiring(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, int32(1), f.provider.refreshCalls.Load())
}
