package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/jafarshop/sellerhub/internal/config"
	"github.com/jafarshop/sellerhub/internal/domain"
	"github.com/jafarshop/sellerhub/pkg/errors"
)

var facebookScopes = []string{
	"pages_show_list",
	"business_management",
	"catalog_management",
	"commerce_account_read_orders",
	"commerce_account_manage_orders",
}

type facebookProvider struct {
	appID     string
	appSecret string
	graphURL  string
	oauth     *oauth2.Config
	opts      Options
}

// NewFacebook creates the Facebook Graph API provider. A non-empty baseURL
// replaces both the dialog and graph hosts.
func NewFacebook(cfg config.FacebookConfig, baseURL string, opts Options) (Provider, error) {
	if !cfg.Enabled() {
		return nil, &errors.ErrPlatformDisabled{Platform: string(domain.PlatformFacebook)}
	}
	version := cfg.GraphVersion
	if version == "" {
		version = "v19.0"
	}

	dialogURL := "https://www.facebook.com/" + version
	graphURL := "https://graph.facebook.com/" + version
	if baseURL != "" {
		baseURL = strings.TrimRight(baseURL, "/")
		dialogURL = baseURL + "/" + version
		graphURL = baseURL + "/" + version
	}

	return &facebookProvider{
		appID:     cfg.AppID,
		appSecret: cfg.AppSecret,
		graphURL:  graphURL,
		oauth: &oauth2.Config{
			ClientID:     cfg.AppID,
			ClientSecret: cfg.AppSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       facebookScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   dialogURL + "/dialog/oauth",
				TokenURL:  graphURL + "/oauth/access_token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		opts: opts.withDefaults(),
	}, nil
}

func (p *facebookProvider) Platform() domain.Platform { return domain.PlatformFacebook }

func (p *facebookProvider) PartnerID() string { return p.appID }

func (p *facebookProvider) Secrets() []string { return []string{p.appSecret} }

func (p *facebookProvider) AuthURL(state string) (string, error) {
	return p.oauth.AuthCodeURL(state), nil
}

// appSecretProof is the HMAC-SHA256 of the access token keyed by the app secret
func (p *facebookProvider) appSecretProof(accessToken string) string {
	return HMACSHA256Hex(p.appSecret, accessToken)
}

func (p *facebookProvider) ExchangeCode(ctx context.Context, code, shopID string) (*TokenSet, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.opts.HTTPClient)
	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, p.oauthError("exchange code", err)
	}

	// Facebook redirects carry no account id; resolve it from the token
	profile, err := p.me(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}
	if shopID == "" {
		shopID = profile.ID
	}

	var expiresIn time.Duration
	if !tok.Expiry.IsZero() {
		expiresIn = tok.Expiry.Sub(p.opts.Now())
	}
	// Long-lived tokens are renewed by exchanging the current token, so it
	// doubles as the refresh token
	return &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.AccessToken,
		ExpiresIn:    expiresIn,
		ShopID:       shopID,
		ShopName:     profile.Name,
	}, nil
}

func (p *facebookProvider) RefreshToken(ctx context.Context, shopID, refreshToken string) (*TokenSet, error) {
	const op = "refresh token"
	q := url.Values{}
	q.Set("grant_type", "fb_exchange_token")
	q.Set("client_id", p.appID)
	q.Set("client_secret", p.appSecret)
	q.Set("fb_exchange_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.graphURL+"/oauth/access_token?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	status, body, err := Do(p.opts.HTTPClient, req, domain.PlatformFacebook, op)
	if err != nil {
		return nil, err
	}
	if err := p.CheckResponse(op, status, body); err != nil {
		return nil, err
	}

	var r struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &r); err != nil || r.AccessToken == "" {
		return nil, &errors.ErrProvider{Platform: domain.PlatformFacebook, Op: op, Message: "token response missing access_token"}
	}
	return &TokenSet{
		AccessToken:  r.AccessToken,
		RefreshToken: r.AccessToken,
		ExpiresIn:    time.Duration(r.ExpiresIn) * time.Second,
		ShopID:       shopID,
	}, nil
}

type facebookProfile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (p *facebookProvider) me(ctx context.Context, accessToken string) (*facebookProfile, error) {
	const op = "fetch profile"
	req, err := p.NewAPIRequest(ctx, APICall{
		Method:   http.MethodGet,
		Endpoint: "/me",
		Data:     map[string]interface{}{"fields": "id,name"},
	}, "", accessToken)
	if err != nil {
		return nil, err
	}
	status, body, err := Do(p.opts.HTTPClient, req, domain.PlatformFacebook, op)
	if err != nil {
		return nil, err
	}
	if err := p.CheckResponse(op, status, body); err != nil {
		return nil, err
	}
	var profile facebookProfile
	if err := json.Unmarshal(body, &profile); err != nil || profile.ID == "" {
		return nil, &errors.ErrProvider{Platform: domain.PlatformFacebook, Op: op, Message: "profile response missing id"}
	}
	return &profile, nil
}

// oauthError separates token endpoint rejections from transport failures
func (p *facebookProvider) oauthError(op string, err error) error {
	var re *oauth2.RetrieveError
	if stderrors.As(err, &re) {
		code, msg := re.ErrorCode, re.ErrorDescription
		if re.Response != nil {
			if perr := p.CheckResponse(op, re.Response.StatusCode, re.Body); perr != nil {
				return perr
			}
			return providerError(domain.PlatformFacebook, op, re.Response.StatusCode, code, msg, p.Secrets())
		}
		return providerError(domain.PlatformFacebook, op, 0, code, msg, p.Secrets())
	}
	return transportError(domain.PlatformFacebook, op, err)
}

func (p *facebookProvider) NewAPIRequest(ctx context.Context, call APICall, _ string, accessToken string) (*http.Request, error) {
	path := call.Endpoint
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	method := strings.ToUpper(call.Method)
	if method == "" {
		method = http.MethodGet
	}

	q := url.Values{}
	for k, vs := range call.Query {
		q[k] = vs
	}

	var body []byte
	if method == http.MethodGet || method == http.MethodDelete {
		for k, v := range call.Data {
			q.Set(k, queryValue(v))
		}
	} else if call.Data != nil {
		var err error
		if body, err = json.Marshal(call.Data); err != nil {
			return nil, err
		}
	}
	q.Set("access_token", accessToken)
	q.Set("appsecret_proof", p.appSecretProof(accessToken))

	req, err := http.NewRequestWithContext(ctx, method, p.graphURL+path+"?"+q.Encode(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (p *facebookProvider) CheckResponse(op string, status int, body []byte) error {
	var r struct {
		Error *struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    int    `json:"code"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &r)
	if r.Error != nil {
		code := r.Error.Type
		if r.Error.Code != 0 {
			code = strconv.Itoa(r.Error.Code)
		}
		return providerError(domain.PlatformFacebook, op, status, code, r.Error.Message, p.Secrets())
	}
	if !IsSuccess(status) {
		return statusError(domain.PlatformFacebook, op, status, body, p.Secrets())
	}
	return nil
}

func (p *facebookProvider) ListOrdersCall(shopID string, since time.Time, pageSize int) APICall {
	return APICall{
		Method:   http.MethodGet,
		Endpoint: "/" + url.PathEscape(shopID) + "/commerce_orders",
		Data: map[string]interface{}{
			"fields":        "id,order_status,created,estimated_payment_details",
			"updated_after": since.Unix(),
			"limit":         pageSize,
		},
	}
}

func (p *facebookProvider) ParseOrders(body []byte) ([]domain.MarketplaceOrder, error) {
	var r struct {
		Data []struct {
			ID          string `json:"id"`
			Created     string `json:"created"`
			OrderStatus struct {
				State string `json:"state"`
			} `json:"order_status"`
			EstimatedPaymentDetails struct {
				TotalAmount struct {
					Amount   string `json:"amount"`
					Currency string `json:"currency"`
				} `json:"total_amount"`
			} `json:"estimated_payment_details"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("failed to parse facebook orders: %w", err)
	}
	orders := make([]domain.MarketplaceOrder, 0, len(r.Data))
	for _, o := range r.Data {
		order := domain.MarketplaceOrder{
			OrderID:   o.ID,
			RawStatus: o.OrderStatus.State,
			Status:    facebookOrderStatus(o.OrderStatus.State),
			Total:     o.EstimatedPaymentDetails.TotalAmount.Amount,
			Currency:  o.EstimatedPaymentDetails.TotalAmount.Currency,
		}
		if t, err := time.Parse("2006-01-02T15:04:05-0700", o.Created); err == nil {
			t = t.UTC()
			order.CreatedAt = &t
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (p *facebookProvider) UpdateOrderStatusCall(shopID, orderID string, status domain.OrderStatus) (APICall, error) {
	switch status.Normalize() {
	case domain.OrderStatusCancelled:
		return APICall{
			Method:   http.MethodPost,
			Endpoint: "/" + url.PathEscape(orderID) + "/cancellations",
			Data:     map[string]interface{}{"idempotency_key": uuid.NewString()},
		}, nil
	case domain.OrderStatusProcessed:
		return APICall{
			Method:   http.MethodPost,
			Endpoint: "/" + url.PathEscape(shopID) + "/acknowledge_orders",
			Data: map[string]interface{}{
				"idempotency_key": uuid.NewString(),
				"orders":          []map[string]string{{"id": orderID}},
			},
		}, nil
	default:
		return APICall{}, unsupportedStatus(domain.PlatformFacebook, status)
	}
}

func (p *facebookProvider) ShopInfoCall(shopID string) APICall {
	return APICall{
		Method:   http.MethodGet,
		Endpoint: "/" + url.PathEscape(shopID),
		Data:     map[string]interface{}{"fields": "id,name"},
	}
}

func (p *facebookProvider) ParseShopInfo(shopID string, body []byte) (*domain.ShopProfile, error) {
	var r facebookProfile
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("failed to parse facebook profile: %w", err)
	}
	return &domain.ShopProfile{ShopID: shopID, Name: r.Name}, nil
}

func facebookOrderStatus(s string) domain.OrderStatus {
	switch s {
	case "FB_PROCESSING":
		return domain.OrderStatusUnpaid
	case "CREATED":
		return domain.OrderStatusReadyToShip
	case "IN_PROGRESS":
		return domain.OrderStatusProcessed
	case "COMPLETED":
		return domain.OrderStatusCompleted
	case "CANCELLED":
		return domain.OrderStatusCancelled
	default:
		return domain.OrderStatusUnknown
	}
}
