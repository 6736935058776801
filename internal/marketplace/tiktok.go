package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jafarshop/sellerhub/internal/config"
	"github.com/jafarshop/sellerhub/internal/domain"
	"github.com/jafarshop/sellerhub/pkg/errors"
)

const (
	tiktokAuthorizeURL = "https://services.tiktokshop.com/open/authorize"
	tiktokAuthBaseURL  = "https://auth.tiktok-shops.com"
	tiktokAPIBaseURL   = "https://open-api.tiktokglobalshop.com"

	tiktokTokenPath   = "/api/v2/token/get"
	tiktokRefreshPath = "/api/v2/token/refresh"
)

type tiktokProvider struct {
	appKey       string
	appSecret    string
	serviceID    string
	authorizeURL string
	authBaseURL  string
	apiBaseURL   string
	opts         Options
}

// NewTikTok creates the TikTok Shop provider. A non-empty baseURL replaces
// every TikTok host.
func NewTikTok(cfg config.TikTokConfig, baseURL string, opts Options) (Provider, error) {
	if !cfg.Enabled() {
		return nil, &errors.ErrPlatformDisabled{Platform: string(domain.PlatformTikTok)}
	}
	p := &tiktokProvider{
		appKey:       cfg.AppKey,
		appSecret:    cfg.AppSecret,
		serviceID:    cfg.ServiceID,
		authorizeURL: tiktokAuthorizeURL,
		authBaseURL:  tiktokAuthBaseURL,
		apiBaseURL:   tiktokAPIBaseURL,
		opts:         opts.withDefaults(),
	}
	if baseURL != "" {
		baseURL = strings.TrimRight(baseURL, "/")
		p.authorizeURL = baseURL + "/open/authorize"
		p.authBaseURL = baseURL
		p.apiBaseURL = baseURL
	}
	return p, nil
}

func (p *tiktokProvider) Platform() domain.Platform { return domain.PlatformTikTok }

func (p *tiktokProvider) PartnerID() string { return p.appKey }

func (p *tiktokProvider) Secrets() []string { return []string{p.appSecret} }

func (p *tiktokProvider) AuthURL(state string) (string, error) {
	q := url.Values{}
	q.Set("service_id", p.serviceID)
	q.Set("state", state)
	return p.authorizeURL + "?" + q.Encode(), nil
}

type tiktokEnvelope struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

type tiktokTokenData struct {
	AccessToken          string `json:"access_token"`
	AccessTokenExpireIn  int64  `json:"access_token_expire_in"`
	RefreshToken         string `json:"refresh_token"`
	RefreshTokenExpireIn int64  `json:"refresh_token_expire_in"`
	OpenID               string `json:"open_id"`
	SellerName           string `json:"seller_name"`
}

func (p *tiktokProvider) ExchangeCode(ctx context.Context, code, shopID string) (*TokenSet, error) {
	q := url.Values{}
	q.Set("app_key", p.appKey)
	q.Set("app_secret", p.appSecret)
	q.Set("auth_code", code)
	q.Set("grant_type", "authorized_code")
	return p.tokenCall(ctx, "exchange code", tiktokTokenPath, shopID, q)
}

func (p *tiktokProvider) RefreshToken(ctx context.Context, shopID, refreshToken string) (*TokenSet, error) {
	q := url.Values{}
	q.Set("app_key", p.appKey)
	q.Set("app_secret", p.appSecret)
	q.Set("refresh_token", refreshToken)
	q.Set("grant_type", "refresh_token")
	return p.tokenCall(ctx, "refresh token", tiktokRefreshPath, shopID, q)
}

func (p *tiktokProvider) tokenCall(ctx context.Context, op, path, shopID string, q url.Values) (*TokenSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.authBaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	status, body, err := Do(p.opts.HTTPClient, req, domain.PlatformTikTok, op)
	if err != nil {
		return nil, err
	}

	var env tiktokEnvelope
	if jsonErr := json.Unmarshal(body, &env); jsonErr != nil {
		return nil, statusError(domain.PlatformTikTok, op, status, body, p.Secrets())
	}
	if env.Code != 0 || !IsSuccess(status) {
		p.opts.Logger.Warn("TikTok rejected token request",
			zap.String("op", op),
			zap.String("shop_id", shopID),
			zap.Int("code", env.Code),
			zap.String("request_id", env.RequestID),
		)
		return nil, providerError(domain.PlatformTikTok, op, status, strconv.Itoa(env.Code), env.Message, p.Secrets())
	}

	var data tiktokTokenData
	if err := json.Unmarshal(env.Data, &data); err != nil || data.AccessToken == "" {
		return nil, &errors.ErrProvider{Platform: domain.PlatformTikTok, Op: op, Message: "token response missing access_token"}
	}

	// access_token_expire_in is an absolute unix time
	expiresIn := time.Unix(data.AccessTokenExpireIn, 0).Sub(p.opts.Now())
	if expiresIn < 0 {
		expiresIn = 0
	}
	if shopID == "" {
		shopID = data.OpenID
	}
	return &TokenSet{
		AccessToken:  data.AccessToken,
		RefreshToken: data.RefreshToken,
		ExpiresIn:    expiresIn,
		ShopID:       shopID,
		ShopName:     data.SellerName,
	}, nil
}

// signTikTok computes the Open API signature: HMAC-SHA256 keyed by the app
// secret over secret + path + sorted key/value pairs + body + secret.
// sign and access_token never take part.
func signTikTok(secret, path string, params url.Values, body []byte) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "sign" || k == "access_token" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(secret)
	b.WriteString(path)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params.Get(k))
	}
	b.Write(body)
	b.WriteString(secret)
	return HMACSHA256Hex(secret, b.String())
}

func (p *tiktokProvider) NewAPIRequest(ctx context.Context, call APICall, shopID, accessToken string) (*http.Request, error) {
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

	// signing parameters go last so call parameters cannot replace them
	q.Set("app_key", p.appKey)
	q.Set("timestamp", strconv.FormatInt(p.opts.Now().Unix(), 10))
	if shopID != "" {
		q.Set("shop_cipher", shopID)
	}
	q.Set("sign", signTikTok(p.appSecret, path, q, body))

	req, err := http.NewRequestWithContext(ctx, method, p.apiBaseURL+path+"?"+q.Encode(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-tts-access-token", accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (p *tiktokProvider) CheckResponse(op string, status int, body []byte) error {
	var env tiktokEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		if !IsSuccess(status) {
			return statusError(domain.PlatformTikTok, op, status, body, p.Secrets())
		}
		return nil
	}
	if env.Code != 0 || !IsSuccess(status) {
		return providerError(domain.PlatformTikTok, op, status, strconv.Itoa(env.Code), env.Message, p.Secrets())
	}
	return nil
}

func (p *tiktokProvider) ListOrdersCall(_ string, since time.Time, pageSize int) APICall {
	return APICall{
		Method:   http.MethodPost,
		Endpoint: "/order/202309/orders/search",
		Query:    url.Values{"page_size": {strconv.Itoa(pageSize)}},
		Data: map[string]interface{}{
			"create_time_ge": since.Unix(),
		},
	}
}

func (p *tiktokProvider) ParseOrders(body []byte) ([]domain.MarketplaceOrder, error) {
	var r struct {
		Data struct {
			Orders []struct {
				ID         string `json:"id"`
				Status     string `json:"status"`
				CreateTime int64  `json:"create_time"`
				Payment    struct {
					TotalAmount string `json:"total_amount"`
					Currency    string `json:"currency"`
				} `json:"payment"`
			} `json:"orders"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("failed to parse tiktok orders: %w", err)
	}
	orders := make([]domain.MarketplaceOrder, 0, len(r.Data.Orders))
	for _, o := range r.Data.Orders {
		order := domain.MarketplaceOrder{
			OrderID:   o.ID,
			RawStatus: o.Status,
			Status:    tiktokOrderStatus(o.Status),
			Total:     o.Payment.TotalAmount,
			Currency:  o.Payment.Currency,
		}
		if o.CreateTime > 0 {
			t := time.Unix(o.CreateTime, 0).UTC()
			order.CreatedAt = &t
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (p *tiktokProvider) UpdateOrderStatusCall(_ string, orderID string, status domain.OrderStatus) (APICall, error) {
	switch status.Normalize() {
	case domain.OrderStatusCancelled:
		return APICall{
			Method:   http.MethodPost,
			Endpoint: "/return_refund/202309/cancellations",
			Data:     map[string]interface{}{"order_id": orderID, "cancel_reason": "seller_cancel_out_of_stock"},
		}, nil
	case domain.OrderStatusProcessed:
		return APICall{
			Method:   http.MethodPost,
			Endpoint: "/fulfillment/202309/orders/" + url.PathEscape(orderID) + "/packages",
			Data:     map[string]interface{}{},
		}, nil
	default:
		return APICall{}, unsupportedStatus(domain.PlatformTikTok, status)
	}
}

func (p *tiktokProvider) ShopInfoCall(_ string) APICall {
	return APICall{Method: http.MethodGet, Endpoint: "/authorization/202309/shops"}
}

func (p *tiktokProvider) ParseShopInfo(shopID string, body []byte) (*domain.ShopProfile, error) {
	var r struct {
		Data struct {
			Shops []struct {
				ID     string `json:"id"`
				Name   string `json:"name"`
				Region string `json:"region"`
				Cipher string `json:"cipher"`
			} `json:"shops"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("failed to parse tiktok shops: %w", err)
	}
	for _, s := range r.Data.Shops {
		if s.Cipher == shopID || s.ID == shopID || len(r.Data.Shops) == 1 {
			return &domain.ShopProfile{ShopID: shopID, Name: s.Name, Region: s.Region}, nil
		}
	}
	return &domain.ShopProfile{ShopID: shopID}, nil
}

func tiktokOrderStatus(s string) domain.OrderStatus {
	switch s {
	case "UNPAID", "ON_HOLD":
		return domain.OrderStatusUnpaid
	case "AWAITING_SHIPMENT":
		return domain.OrderStatusReadyToShip
	case "AWAITING_COLLECTION":
		return domain.OrderStatusProcessed
	case "IN_TRANSIT", "DELIVERED":
		return domain.OrderStatusShipped
	case "COMPLETED":
		return domain.OrderStatusCompleted
	case "CANCELLED":
		return domain.OrderStatusCancelled
	default:
		return domain.OrderStatusUnknown
	}
}
