// Package marketplace implements the OAuth and signed-request protocols of the
// supported seller platforms. Providers are stateless apart from credentials;
// token persistence lives in the service layer.
package marketplace

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/jafarshop/sellerhub/internal/domain"
)

// TokenSet is the result of a successful code exchange or refresh
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	// Set when the platform identifies the account during the exchange
	ShopID   string
	ShopName string
}

// APICall describes a seller API call before signing.
// Data goes to the query string for GET and DELETE and to a JSON body otherwise.
type APICall struct {
	Method   string
	Endpoint string
	Query    url.Values
	Data     map[string]interface{}
}

// Provider is one marketplace's OAuth and API protocol.
//
// ExchangeCode and RefreshToken return *errors.ErrProvider when the platform
// rejects the request and *errors.ErrTransport when it cannot be reached.
type Provider interface {
	Platform() domain.Platform
	PartnerID() string
	AuthURL(state string) (string, error)
	ExchangeCode(ctx context.Context, code, shopID string) (*TokenSet, error)
	RefreshToken(ctx context.Context, shopID, refreshToken string) (*TokenSet, error)
	// NewAPIRequest builds a signed request against the seller API
	NewAPIRequest(ctx context.Context, call APICall, shopID, accessToken string) (*http.Request, error)
	// CheckResponse detects errors reported inside a 2xx response body
	CheckResponse(op string, statusCode int, body []byte) error
	// Secrets lists values that must never appear in relayed messages
	Secrets() []string

	Operations
}

// Operations maps seller operations onto platform endpoints
type Operations interface {
	ListOrdersCall(shopID string, since time.Time, pageSize int) APICall
	ParseOrders(body []byte) ([]domain.MarketplaceOrder, error)
	UpdateOrderStatusCall(shopID, orderID string, status domain.OrderStatus) (APICall, error)
	ShopInfoCall(shopID string) APICall
	ParseShopInfo(shopID string, body []byte) (*domain.ShopProfile, error)
}

// Options carries dependencies shared by every provider
type Options struct {
	HTTPClient *http.Client
	Logger     *zap.Logger
	Now        func() time.Time
}

func (o Options) withDefaults() Options {
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
