package service

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/jafarshop/sellerhub/internal/domain"
	"github.com/jafarshop/sellerhub/internal/marketplace"
	"github.com/jafarshop/sellerhub/internal/metrics"
	"github.com/jafarshop/sellerhub/internal/repository"
	"github.com/jafarshop/sellerhub/pkg/errors"
)

// DefaultRefreshWindow is how far ahead of expiry a token is refreshed
const DefaultRefreshWindow = 5 * time.Minute

// TokenResult is the outcome of an authorization code exchange. A rejected
// exchange has Success false and a relayable Error.
type TokenResult struct {
	Success      bool
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	ShopID       string
	ShopName     string
	Error        string
}

// BrokerOptions carries the broker's collaborators. Zero values get defaults.
type BrokerOptions struct {
	HTTPClient    *http.Client
	RefreshWindow time.Duration
	Metrics       *metrics.Metrics
	Logger        *zap.Logger
	Now           func() time.Time
}

// TokenBroker owns the token lifecycle of one platform: code exchange,
// persistence, refresh ahead of expiry and authenticated calls.
type TokenBroker struct {
	provider marketplace.Provider
	accounts repository.BusinessAccountRepository
	client   *http.Client
	window   time.Duration
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time

	// refreshes of one shop share a single provider call
	group singleflight.Group
}

// NewTokenBroker creates a broker for provider's platform
func NewTokenBroker(provider marketplace.Provider, accounts repository.BusinessAccountRepository, opts BrokerOptions) *TokenBroker {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.RefreshWindow <= 0 {
		opts.RefreshWindow = DefaultRefreshWindow
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &TokenBroker{
		provider: provider,
		accounts: accounts,
		client:   opts.HTTPClient,
		window:   opts.RefreshWindow,
		metrics:  opts.Metrics,
		logger:   opts.Logger.With(zap.String("platform", string(provider.Platform()))),
		now:      opts.Now,
	}
}

// Platform returns the broker's platform
func (b *TokenBroker) Platform() domain.Platform {
	return b.provider.Platform()
}

// Provider returns the underlying protocol implementation
func (b *TokenBroker) Provider() marketplace.Provider {
	return b.provider
}

// GenerateAuthURL builds the platform's authorization URL for state
func (b *TokenBroker) GenerateAuthURL(state string) (string, error) {
	return b.provider.AuthURL(state)
}

// ExchangeCodeForToken trades an authorization code for tokens. Only transport
// failures are returned as errors; rejections come back as an unsuccessful
// result.
func (b *TokenBroker) ExchangeCodeForToken(ctx context.Context, code, shopID string) (*TokenResult, error) {
	if code == "" {
		return &TokenResult{Success: false, Error: "missing authorization code"}, nil
	}

	tokens, err := b.provider.ExchangeCode(ctx, code, shopID)
	if err != nil {
		var terr *errors.ErrTransport
		if stderrors.As(err, &terr) {
			b.logger.Warn("Token exchange failed to reach platform", zap.String("shop_id", shopID), zap.Error(err))
			return nil, err
		}
		var perr *errors.ErrProvider
		var verr *errors.ErrValidation
		if stderrors.As(err, &perr) || stderrors.As(err, &verr) {
			b.logger.Warn("Token exchange rejected", zap.String("shop_id", shopID), zap.Error(err))
			return &TokenResult{Success: false, ShopID: shopID, Error: err.Error()}, nil
		}
		return nil, err
	}

	b.logger.Info("Token exchange succeeded", zap.String("shop_id", tokens.ShopID))
	return &TokenResult{
		Success:      true,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    b.expiresAt(tokens.ExpiresIn),
		ShopID:       tokens.ShopID,
		ShopName:     tokens.ShopName,
	}, nil
}

// StoreBusinessAccount persists the tokens of a successful exchange for the
// tenant. Reconnecting an existing shop overwrites tokens, expiry and status.
func (b *TokenBroker) StoreBusinessAccount(ctx context.Context, tenantID uuid.UUID, result *TokenResult, shop *domain.ShopProfile) (*domain.BusinessAccount, error) {
	if result == nil || !result.Success {
		return nil, &errors.ErrValidation{Message: "cannot store an unsuccessful token exchange"}
	}

	shopID := result.ShopID
	if shopID == "" && shop != nil {
		shopID = shop.ShopID
	}
	if shopID == "" {
		return nil, &errors.ErrValidation{
			Message: "shop id is required",
			Fields:  map[string]string{"shop_id": "required"},
		}
	}

	account := &domain.BusinessAccount{
		TenantID:       tenantID,
		Platform:       b.provider.Platform(),
		ShopID:         shopID,
		PartnerID:      b.provider.PartnerID(),
		ShopName:       result.ShopName,
		AccessToken:    result.AccessToken,
		RefreshToken:   result.RefreshToken,
		TokenExpiresAt: result.ExpiresAt,
		Status:         domain.ConnectionStatusConnected,
	}
	if shop != nil {
		if shop.Name != "" {
			account.ShopName = shop.Name
		}
		if shop.Region != "" {
			region := shop.Region
			account.Region = &region
		}
	}

	if err := b.accounts.Upsert(ctx, account); err != nil {
		b.logger.Error("Failed to store business account", zap.String("shop_id", shopID), zap.Error(err))
		return nil, err
	}
	b.logger.Info("Business account connected",
		zap.String("shop_id", shopID),
		zap.String("tenant_id", tenantID.String()),
	)
	return account, nil
}

// EnsureValidToken returns a usable access token for shopID, refreshing it
// first when it expires within the look-ahead window. An empty token means the
// shop must be reauthorized. Errors are returned only for storage failures.
func (b *TokenBroker) EnsureValidToken(ctx context.Context, shopID string) (string, error) {
	account, err := b.account(ctx, shopID)
	if err != nil || account == nil {
		return "", err
	}
	if !account.IsConnected() {
		return "", nil
	}
	if !account.ExpiresWithin(b.now(), b.window) {
		return account.AccessToken, nil
	}

	key := string(b.provider.Platform()) + ":" + shopID
	v, err, shared := b.group.Do(key, func() (interface{}, error) {
		// callers that joined late must not cancel the shared refresh
		return b.refresh(context.WithoutCancel(ctx), shopID)
	})
	if shared {
		b.logger.Debug("Joined in-flight token refresh", zap.String("shop_id", shopID))
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (b *TokenBroker) account(ctx context.Context, shopID string) (*domain.BusinessAccount, error) {
	account, err := b.accounts.GetByShopID(ctx, b.provider.Platform(), shopID)
	if err != nil {
		var nf *errors.ErrNotFound
		if stderrors.As(err, &nf) {
			return nil, nil
		}
		return nil, err
	}
	return account, nil
}

func (b *TokenBroker) refresh(ctx context.Context, shopID string) (string, error) {
	platform := string(b.provider.Platform())

	// re-read: a refresh that finished just before this one started already
	// rotated the tokens
	account, err := b.account(ctx, shopID)
	if err != nil || account == nil {
		return "", err
	}
	if !account.IsConnected() {
		return "", nil
	}
	if !account.ExpiresWithin(b.now(), b.window) {
		return account.AccessToken, nil
	}
	if account.RefreshToken == "" {
		b.logger.Warn("Token expiring without refresh token", zap.String("shop_id", shopID))
		b.metrics.RefreshResult(platform, "no_refresh_token")
		return "", nil
	}

	tokens, err := b.provider.RefreshToken(ctx, shopID, account.RefreshToken)
	if err != nil {
		var perr *errors.ErrProvider
		if stderrors.As(err, &perr) {
			b.logger.Warn("Refresh rejected, marking shop disconnected", zap.String("shop_id", shopID), zap.Error(err))
			b.metrics.RefreshResult(platform, "rejected")
			if derr := b.accounts.MarkDisconnected(ctx, b.provider.Platform(), shopID); derr != nil {
				b.logger.Error("Failed to mark shop disconnected", zap.String("shop_id", shopID), zap.Error(derr))
			}
			return "", nil
		}
		b.logger.Warn("Token refresh failed", zap.String("shop_id", shopID), zap.Error(err))
		b.metrics.RefreshResult(platform, "error")
		return "", nil
	}

	refreshToken := tokens.RefreshToken
	if refreshToken == "" {
		refreshToken = account.RefreshToken
	}
	expiresAt := b.expiresAt(tokens.ExpiresIn)
	if err := b.accounts.UpdateTokens(ctx, b.provider.Platform(), shopID, tokens.AccessToken, refreshToken, expiresAt); err != nil {
		b.logger.Error("Failed to persist refreshed token", zap.String("shop_id", shopID), zap.Error(err))
		b.metrics.RefreshResult(platform, "error")
		return "", err
	}

	b.metrics.RefreshResult(platform, "success")
	b.logger.Info("Access token refreshed", zap.String("shop_id", shopID))
	return tokens.AccessToken, nil
}

// MakeAuthenticatedRequest performs a signed seller API call and returns the
// response body. A shop without a usable token fails with
// *errors.ErrReauthorizationRequired before any network traffic.
func (b *TokenBroker) MakeAuthenticatedRequest(ctx context.Context, shopID string, call marketplace.APICall) ([]byte, error) {
	platform := b.provider.Platform()

	token, err := b.EnsureValidToken(ctx, shopID)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, &errors.ErrReauthorizationRequired{Platform: platform, ShopID: shopID}
	}

	req, err := b.provider.NewAPIRequest(ctx, call, shopID, token)
	if err != nil {
		return nil, err
	}

	op := call.Endpoint
	status, body, err := marketplace.Do(b.client, req, platform, op)
	if err != nil {
		b.logger.Warn("Marketplace call failed", zap.String("shop_id", shopID), zap.String("endpoint", call.Endpoint), zap.Error(err))
		b.metrics.ProviderCall(string(platform), "transport_error")
		return nil, err
	}
	if err := b.provider.CheckResponse(op, status, body); err != nil {
		b.logger.Warn("Marketplace call rejected",
			zap.String("shop_id", shopID),
			zap.String("endpoint", call.Endpoint),
			zap.Int("status", status),
			zap.Error(err),
		)
		b.metrics.ProviderCall(string(platform), "provider_error")
		return nil, err
	}

	b.metrics.ProviderCall(string(platform), "success")
	b.logger.Debug("Marketplace call succeeded", zap.String("shop_id", shopID), zap.String("endpoint", call.Endpoint))
	return body, nil
}

// DisconnectShop clears the shop's tokens and keeps the account record
func (b *TokenBroker) DisconnectShop(ctx context.Context, shopID string) error {
	if err := b.accounts.MarkDisconnected(ctx, b.provider.Platform(), shopID); err != nil {
		return err
	}
	b.logger.Info("Business account disconnected", zap.String("shop_id", shopID))
	return nil
}

// RefreshExpiring refreshes every connected account whose token expires within
// the look-ahead window and reports how many now hold a usable token
func (b *TokenBroker) RefreshExpiring(ctx context.Context) (int, error) {
	accounts, err := b.accounts.ListExpiring(ctx, b.provider.Platform(), b.now().Add(b.window))
	if err != nil {
		return 0, err
	}
	refreshed := 0
	for _, a := range accounts {
		if ctx.Err() != nil {
			return refreshed, ctx.Err()
		}
		token, err := b.EnsureValidToken(ctx, a.ShopID)
		if err != nil {
			b.logger.Error("Proactive refresh failed", zap.String("shop_id", a.ShopID), zap.Error(err))
			continue
		}
		if token != "" {
			refreshed++
		}
	}
	return refreshed, nil
}

// expiresAt converts a provider TTL to an absolute time. Tokens without a TTL
// never expire.
func (b *TokenBroker) expiresAt(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := b.now().Add(ttl).UTC()
	return &t
}
