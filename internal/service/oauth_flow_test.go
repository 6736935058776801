package service

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jafarshop/sellerhub/internal/domain"
	"github.com/jafarshop/sellerhub/internal/repository/memory"
	"github.com/jafarshop/sellerhub/pkg/errors"
)

type flowFixture struct {
	*brokerFixture
	states *memory.OAuthStateRepository
	flow   *OAuthFlow
}

func newFlowFixture(t *testing.T) *flowFixture {
	t.Helper()
	bf := newBrokerFixture(t, okHandler(`{}`))
	states := memory.NewOAuthStateRepository()
	bf.repos.OAuthState = states
	flow := NewOAuthFlow(
		Brokers{domain.PlatformShopee: bf.broker},
		states,
		OAuthFlowConfig{StateTTL: 10 * time.Minute, AllowedRedirects: []string{"/integrations", "/settings/shops"}},
		nil,
		zap.NewNop(),
	)
	return &flowFixture{brokerFixture: bf, states: states, flow: flow}
}

func stateFrom(t *testing.T, authURL string) string {
	t.Helper()
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	return u.Query().Get("state")
}

func TestNewStateToken(t *testing.T) {
	a, err := NewStateToken()
	require.NoError(t, err)
	b, err := NewStateToken()
	require.NoError(t, err)

	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
}

func TestOAuthFlowStartAndComplete(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()

	started, err := f.flow.Start(ctx, domain.PlatformShopee, f.tenantID, "/settings/shops")
	require.NoError(t, err)
	assert.Equal(t, started.State, stateFrom(t, started.AuthURL))
	assert.Equal(t, 1, f.states.Len())

	result, err := f.flow.Complete(ctx, domain.PlatformShopee, started.State, "c1", testShopID)
	require.NoError(t, err)
	assert.Equal(t, "/settings/shops", result.RedirectPath)
	require.NotNil(t, result.Account)
	assert.Equal(t, f.tenantID, result.Account.TenantID)

	a := f.account(t)
	assert.Equal(t, "access-c1", a.AccessToken)
	assert.Equal(t, domain.ConnectionStatusConnected, a.Status)
	assert.Zero(t, f.states.Len())
}

func TestOAuthFlowStateIsReadOnce(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()

	started, err := f.flow.Start(ctx, domain.PlatformShopee, f.tenantID, "")
	require.NoError(t, err)
	_, err = f.flow.Complete(ctx, domain.PlatformShopee, started.State, "c1", testShopID)
	require.NoError(t, err)

	result, err := f.flow.Complete(ctx, domain.PlatformShopee, started.State, "c2", testShopID)
	var serr *errors.ErrInvalidState
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "/integrations", result.RedirectPath)
	assert.Equal(t, "access-c1", f.account(t).AccessToken)
}

func TestOAuthFlowRejectsExpiredState(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()

	started, err := f.flow.Start(ctx, domain.PlatformShopee, f.tenantID, "")
	require.NoError(t, err)

	f.flow.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	_, err = f.flow.Complete(ctx, domain.PlatformShopee, started.State, "c1", testShopID)
	assert.True(t, IsInvalidState(err))

	_, err = f.repos.BusinessAccount.GetByShopID(ctx, domain.PlatformShopee, testShopID)
	var nf *errors.ErrNotFound
	assert.ErrorAs(t, err, &nf)
}

func TestOAuthFlowRejectsUnknownAndMissingState(t *testing.T) {
	f := newFlowFixture(t)

	_, err := f.flow.Complete(context.Background(), domain.PlatformShopee, "forged", "c1", testShopID)
	assert.True(t, IsInvalidState(err))

	_, err = f.flow.Complete(context.Background(), domain.PlatformShopee, "", "c1", testShopID)
	assert.True(t, IsInvalidState(err))
}

func TestOAuthFlowRejectsPlatformMismatch(t *testing.T) {
	f := newFlowFixture(t)
	tiktok := NewTokenBroker(&tiktokFake{f.provider}, f.repos.BusinessAccount, BrokerOptions{})
	f.flow.brokers[domain.PlatformTikTok] = tiktok

	started, err := f.flow.Start(context.Background(), domain.PlatformShopee, f.tenantID, "")
	require.NoError(t, err)

	_, err = f.flow.Complete(context.Background(), domain.PlatformTikTok, started.State, "c1", testShopID)
	assert.True(t, IsInvalidState(err))
}

func TestOAuthFlowRedirectAllowList(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()

	for _, path := range []string{"https://evil.example.com", "//evil.example.com", "/admin"} {
		started, err := f.flow.Start(ctx, domain.PlatformShopee, f.tenantID, path)
		require.NoError(t, err)
		result, err := f.flow.Complete(ctx, domain.PlatformShopee, started.State, "c1", testShopID)
		require.NoError(t, err)
		assert.Equal(t, "/integrations", result.RedirectPath, path)
	}
}

func TestOAuthFlowRejectedExchange(t *testing.T) {
	f := newFlowFixture(t)
	f.provider.exchangeErr = &errors.ErrProvider{Platform: domain.PlatformShopee, Op: "exchange code", Message: "invalid code"}

	started, err := f.flow.Start(context.Background(), domain.PlatformShopee, f.tenantID, "")
	require.NoError(t, err)

	_, err = f.flow.Complete(context.Background(), domain.PlatformShopee, started.State, "bad", testShopID)
	var perr *errors.ErrProvider
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Message, "invalid code")
}

func TestOAuthFlowDisabledPlatform(t *testing.T) {
	f := newFlowFixture(t)

	_, err := f.flow.Start(context.Background(), domain.PlatformFacebook, uuid.New(), "")
	var disabled *errors.ErrPlatformDisabled
	assert.ErrorAs(t, err, &disabled)
}

func TestPurgeExpiredStates(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()

	_, err := f.flow.Start(ctx, domain.PlatformShopee, f.tenantID, "")
	require.NoError(t, err)

	n, err := f.flow.PurgeExpiredStates(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.flow.now = func() time.Time { return time.Now().Add(time.Hour) }
	n, err = f.flow.PurgeExpiredStates(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Zero(t, f.states.Len())
}

func TestMaintenanceRunOnce(t *testing.T) {
	f := newFlowFixture(t)
	ctx := context.Background()
	f.seed(t, time.Minute)

	m, err := NewMaintenance(f.flow, f.flow.brokers, f.repos.Idempotency, zap.NewNop())
	require.NoError(t, err)
	m.RunOnce(ctx)

	assert.Equal(t, int32(1), f.provider.refreshCalls.Load())
	assert.Equal(t, "access-r1", f.account(t).AccessToken)
}

// tiktokFake reports a different platform over the same fake protocol
type tiktokFake struct {
	*fakeProvider
}

func (p *tiktokFake) Platform() domain.Platform { return domain.PlatformTikTok }
