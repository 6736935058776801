package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/sellerhub/internal/domain"
	"github.com/jafarshop/sellerhub/internal/marketplace"
	"github.com/jafarshop/sellerhub/internal/metrics"
	"github.com/jafarshop/sellerhub/internal/repository"
	"github.com/jafarshop/sellerhub/pkg/errors"
)

// DefaultStateTTL bounds how long a connect flow may take
const DefaultStateTTL = 10 * time.Minute

// Brokers indexes token brokers by platform
type Brokers map[domain.Platform]*TokenBroker

// NewBrokers creates one broker per enabled platform in registry
func NewBrokers(registry *marketplace.Registry, accounts repository.BusinessAccountRepository, opts BrokerOptions) Brokers {
	brokers := make(Brokers)
	for _, platform := range registry.Platforms() {
		provider, _ := registry.Get(platform)
		brokers[platform] = NewTokenBroker(provider, accounts, opts)
	}
	return brokers
}

// Get returns the broker of an enabled platform
func (b Brokers) Get(platform domain.Platform) (*TokenBroker, error) {
	broker, ok := b[platform]
	if !ok {
		return nil, &errors.ErrPlatformDisabled{Platform: string(platform)}
	}
	return broker, nil
}

// OAuthFlowConfig configures connect flows
type OAuthFlowConfig struct {
	StateTTL time.Duration
	// AllowedRedirects lists post-auth paths; the first is the default
	AllowedRedirects []string
}

// ConnectResult is returned when a connect flow starts
type ConnectResult struct {
	AuthURL   string    `json:"auth_url"`
	State     string    `json:"state"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CallbackResult is the outcome of a completed flow. RedirectPath is always
// set so the caller can send the user back even on failure.
type CallbackResult struct {
	Account      *domain.BusinessAccount
	RedirectPath string
}

// OAuthFlow drives the connect flow: state issue, callback validation, code
// exchange and account storage
type OAuthFlow struct {
	brokers  Brokers
	states   repository.OAuthStateRepository
	ttl      time.Duration
	allowed  []string
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
	newState func() (string, error)
}

// NewOAuthFlow creates the connect flow service
func NewOAuthFlow(brokers Brokers, states repository.OAuthStateRepository, cfg OAuthFlowConfig, m *metrics.Metrics, logger *zap.Logger) *OAuthFlow {
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = DefaultStateTTL
	}
	if len(cfg.AllowedRedirects) == 0 {
		cfg.AllowedRedirects = []string{"/integrations"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OAuthFlow{
		brokers:  brokers,
		states:   states,
		ttl:      cfg.StateTTL,
		allowed:  cfg.AllowedRedirects,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
		newState: NewStateToken,
	}
}

// NewStateToken returns 32 random bytes encoded as unpadded base64url
func NewStateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Start issues a state for tenantID and returns the platform authorization URL
func (f *OAuthFlow) Start(ctx context.Context, platform domain.Platform, tenantID uuid.UUID, redirectPath string) (*ConnectResult, error) {
	broker, err := f.brokers.Get(platform)
	if err != nil {
		return nil, err
	}

	token, err := f.newState()
	if err != nil {
		return nil, err
	}
	now := f.now().UTC()
	state := &domain.OAuthState{
		State:        token,
		TenantID:     tenantID,
		Platform:     platform,
		RedirectPath: f.redirectPath(redirectPath),
		CreatedAt:    now,
		ExpiresAt:    now.Add(f.ttl),
	}

	authURL, err := broker.GenerateAuthURL(token)
	if err != nil {
		f.metrics.OAuthFlow(string(platform), "start", "error")
		return nil, err
	}
	if err := f.states.Save(ctx, state); err != nil {
		f.logger.Error("Failed to save oauth state", zap.String("platform", string(platform)), zap.Error(err))
		f.metrics.OAuthFlow(string(platform), "start", "error")
		return nil, err
	}

	f.metrics.OAuthFlow(string(platform), "start", "success")
	f.logger.Info("OAuth flow started",
		zap.String("platform", string(platform)),
		zap.String("tenant_id", tenantID.String()),
	)
	return &ConnectResult{AuthURL: authURL, State: token, ExpiresAt: state.ExpiresAt}, nil
}

// Complete validates the callback state, exchanges the code and stores the
// account. Invalid, expired and reused states fail with
// *errors.ErrInvalidState; a rejected exchange fails with *errors.ErrProvider.
func (f *OAuthFlow) Complete(ctx context.Context, platform domain.Platform, stateToken, code, shopID string) (*CallbackResult, error) {
	result := &CallbackResult{RedirectPath: f.allowed[0]}
	fail := func(err error) (*CallbackResult, error) {
		f.metrics.OAuthFlow(string(platform), "callback", "error")
		f.logger.Warn("OAuth callback failed", zap.String("platform", string(platform)), zap.Error(err))
		return result, err
	}

	broker, err := f.brokers.Get(platform)
	if err != nil {
		return fail(err)
	}
	if strings.TrimSpace(stateToken) == "" {
		return fail(&errors.ErrInvalidState{Reason: "missing"})
	}

	state, err := f.states.Consume(ctx, stateToken, f.now())
	if err != nil {
		return fail(err)
	}
	result.RedirectPath = state.RedirectPath
	if state.Platform != platform {
		return fail(&errors.ErrInvalidState{Reason: "platform mismatch"})
	}

	tokens, err := broker.ExchangeCodeForToken(ctx, code, shopID)
	if err != nil {
		return fail(err)
	}
	if !tokens.Success {
		return fail(&errors.ErrProvider{Platform: platform, Op: "exchange code", Message: tokens.Error})
	}

	account, err := broker.StoreBusinessAccount(ctx, state.TenantID, tokens, nil)
	if err != nil {
		return fail(err)
	}
	result.Account = account

	f.metrics.OAuthFlow(string(platform), "callback", "success")
	return result, nil
}

// redirectPath returns p when it is on the allow-list, else the default
func (f *OAuthFlow) redirectPath(p string) string {
	p = strings.TrimSpace(p)
	for _, allowed := range f.allowed {
		if p == allowed {
			return p
		}
	}
	return f.allowed[0]
}

// PurgeExpiredStates removes states past their TTL
func (f *OAuthFlow) PurgeExpiredStates(ctx context.Context) (int64, error) {
	n, err := f.states.PurgeExpired(ctx, f.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		f.logger.Debug("Purged expired oauth states", zap.Int64("count", n))
	}
	return n, nil
}

// IsInvalidState reports whether err is a state failure
func IsInvalidState(err error) bool {
	var serr *errors.ErrInvalidState
	return stderrors.As(err, &serr)
}
