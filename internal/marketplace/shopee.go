package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jafarshop/sellerhub/internal/config"
	"github.com/jafarshop/sellerhub/internal/domain"
	"github.com/jafarshop/sellerhub/pkg/errors"
)

const (
	shopeeAuthPath    = "/api/v2/shop/auth_partner"
	shopeeTokenPath   = "/api/v2/auth/token/get"
	shopeeRefreshPath = "/api/v2/auth/access_token/get"

	// get_order_list rejects ranges longer than 15 days
	shopeeMaxOrderRange = 15 * 24 * time.Hour
)

// ShopeeBaseURL returns the Open Platform host for a region code
func ShopeeBaseURL(region string) string {
	switch strings.ToLower(strings.TrimSpace(region)) {
	case "cn":
		return "https://openplatform.shopee.cn"
	case "sandbox", "test":
		return "https://partner.test-stable.shopeemobile.com"
	default:
		return "https://partner.shopeemobile.com"
	}
}

type shopeeProvider struct {
	partnerID   string
	partnerKey  string
	redirectURI string
	baseURL     string
	opts        Options
}

// NewShopee creates the Shopee Open Platform v2 provider
func NewShopee(cfg config.ShopeeConfig, baseURL string, opts Options) (Provider, error) {
	if !cfg.Enabled() {
		return nil, &errors.ErrPlatformDisabled{Platform: string(domain.PlatformShopee)}
	}
	if _, err := strconv.ParseInt(cfg.PartnerID, 10, 64); err != nil {
		return nil, fmt.Errorf("SHOPEE_PARTNER_ID must be numeric: %w", err)
	}
	if baseURL == "" {
		baseURL = ShopeeBaseURL(cfg.Region)
	}
	return &shopeeProvider{
		partnerID:   cfg.PartnerID,
		partnerKey:  cfg.PartnerKey,
		redirectURI: cfg.RedirectURI,
		baseURL:     strings.TrimRight(baseURL, "/"),
		opts:        opts.withDefaults(),
	}, nil
}

func (p *shopeeProvider) Platform() domain.Platform { return domain.PlatformShopee }

func (p *shopeeProvider) PartnerID() string { return p.partnerID }

func (p *shopeeProvider) Secrets() []string { return []string{p.partnerKey} }

// sign computes the v2 signature. Public calls pass empty accessToken and
// shopID, which reduces the base string to partner_id + path + timestamp.
func (p *shopeeProvider) sign(path string, ts int64, accessToken, shopID string) string {
	base := p.partnerID + path + strconv.FormatInt(ts, 10) + accessToken + shopID
	return HMACSHA256Hex(p.partnerKey, base)
}

func (p *shopeeProvider) AuthURL(state string) (string, error) {
	redirect, err := url.Parse(p.redirectURI)
	if err != nil {
		return "", fmt.Errorf("invalid SHOPEE_REDIRECT_URI: %w", err)
	}
	rq := redirect.Query()
	rq.Set("state", state)
	redirect.RawQuery = rq.Encode()

	ts := p.opts.Now().Unix()
	q := url.Values{}
	q.Set("partner_id", p.partnerID)
	q.Set("timestamp", strconv.FormatInt(ts, 10))
	q.Set("sign", p.sign(shopeeAuthPath, ts, "", ""))
	q.Set("redirect", redirect.String())
	return p.baseURL + shopeeAuthPath + "?" + q.Encode(), nil
}

type shopeeTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpireIn     int64  `json:"expire_in"`
	Error        string `json:"error"`
	Message      string `json:"message"`
	RequestID    string `json:"request_id"`
}

func (p *shopeeProvider) ExchangeCode(ctx context.Context, code, shopID string) (*TokenSet, error) {
	sid, err := parseShopeeShopID(shopID)
	if err != nil {
		return nil, err
	}
	pid, _ := strconv.ParseInt(p.partnerID, 10, 64)
	return p.tokenCall(ctx, "exchange code", shopeeTokenPath, shopID, map[string]interface{}{
		"code":       code,
		"shop_id":    sid,
		"partner_id": pid,
	})
}

func (p *shopeeProvider) RefreshToken(ctx context.Context, shopID, refreshToken string) (*TokenSet, error) {
	sid, err := parseShopeeShopID(shopID)
	if err != nil {
		return nil, err
	}
	pid, _ := strconv.ParseInt(p.partnerID, 10, 64)
	return p.tokenCall(ctx, "refresh token", shopeeRefreshPath, shopID, map[string]interface{}{
		"refresh_token": refreshToken,
		"shop_id":       sid,
		"partner_id":    pid,
	})
}

func (p *shopeeProvider) tokenCall(ctx context.Context, op, path, shopID string, payload map[string]interface{}) (*TokenSet, error) {
	ts := p.opts.Now().Unix()
	q := url.Values{}
	q.Set("partner_id", p.partnerID)
	q.Set("timestamp", strconv.FormatInt(ts, 10))
	q.Set("sign", p.sign(path, ts, "", ""))

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path+"?"+q.Encode(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	status, respBody, err := Do(p.opts.HTTPClient, req, domain.PlatformShopee, op)
	if err != nil {
		return nil, err
	}

	var r shopeeTokenResponse
	if jsonErr := json.Unmarshal(respBody, &r); jsonErr != nil {
		if !IsSuccess(status) {
			return nil, statusError(domain.PlatformShopee, op, status, respBody, p.Secrets())
		}
		return nil, &errors.ErrProvider{Platform: domain.PlatformShopee, Op: op, Message: "malformed token response", StatusCode: status}
	}
	if r.Error != "" || !IsSuccess(status) {
		p.opts.Logger.Warn("Shopee rejected token request",
			zap.String("op", op),
			zap.String("shop_id", shopID),
			zap.String("error", r.Error),
			zap.String("request_id", r.RequestID),
		)
		return nil, providerError(domain.PlatformShopee, op, status, r.Error, r.Message, p.Secrets())
	}
	if r.AccessToken == "" {
		return nil, &errors.ErrProvider{Platform: domain.PlatformShopee, Op: op, Message: "token response missing access_token"}
	}

	return &TokenSet{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresIn:    time.Duration(r.ExpireIn) * time.Second,
		ShopID:       shopID,
	}, nil
}

func (p *shopeeProvider) NewAPIRequest(ctx context.Context, call APICall, shopID, accessToken string) (*http.Request, error) {
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
	ts := p.opts.Now().Unix()
	q.Set("partner_id", p.partnerID)
	q.Set("timestamp", strconv.FormatInt(ts, 10))
	q.Set("access_token", accessToken)
	q.Set("shop_id", shopID)
	q.Set("sign", p.sign(path, ts, accessToken, shopID))

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path+"?"+q.Encode(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (p *shopeeProvider) CheckResponse(op string, status int, body []byte) error {
	var r struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &r)
	if r.Error != "" {
		return providerError(domain.PlatformShopee, op, status, r.Error, r.Message, p.Secrets())
	}
	if !IsSuccess(status) {
		return statusError(domain.PlatformShopee, op, status, body, p.Secrets())
	}
	return nil
}

func (p *shopeeProvider) ListOrdersCall(_ string, since time.Time, pageSize int) APICall {
	now := p.opts.Now()
	if now.Sub(since) > shopeeMaxOrderRange {
		since = now.Add(-shopeeMaxOrderRange)
	}
	return APICall{
		Method:   http.MethodGet,
		Endpoint: "/api/v2/order/get_order_list",
		Data: map[string]interface{}{
			"time_range_field":         "create_time",
			"time_from":                since.Unix(),
			"time_to":                  now.Unix(),
			"page_size":                pageSize,
			"response_optional_fields": "order_status",
		},
	}
}

func (p *shopeeProvider) ParseOrders(body []byte) ([]domain.MarketplaceOrder, error) {
	var r struct {
		Response struct {
			OrderList []struct {
				OrderSN     string `json:"order_sn"`
				OrderStatus string `json:"order_status"`
			} `json:"order_list"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("failed to parse shopee orders: %w", err)
	}
	orders := make([]domain.MarketplaceOrder, 0, len(r.Response.OrderList))
	for _, o := range r.Response.OrderList {
		orders = append(orders, domain.MarketplaceOrder{
			OrderID:   o.OrderSN,
			RawStatus: o.OrderStatus,
			Status:    shopeeOrderStatus(o.OrderStatus),
		})
	}
	return orders, nil
}

func (p *shopeeProvider) UpdateOrderStatusCall(_ string, orderID string, status domain.OrderStatus) (APICall, error) {
	switch status.Normalize() {
	case domain.OrderStatusCancelled:
		return APICall{
			Method:   http.MethodPost,
			Endpoint: "/api/v2/order/cancel_order",
			Data:     map[string]interface{}{"order_sn": orderID, "cancel_reason": "OUT_OF_STOCK"},
		}, nil
	case domain.OrderStatusProcessed:
		return APICall{
			Method:   http.MethodPost,
			Endpoint: "/api/v2/logistics/ship_order",
			Data:     map[string]interface{}{"order_sn": orderID, "dropoff": map[string]interface{}{}},
		}, nil
	default:
		return APICall{}, unsupportedStatus(domain.PlatformShopee, status)
	}
}

func (p *shopeeProvider) ShopInfoCall(_ string) APICall {
	return APICall{Method: http.MethodGet, Endpoint: "/api/v2/shop/get_shop_info"}
}

func (p *shopeeProvider) ParseShopInfo(shopID string, body []byte) (*domain.ShopProfile, error) {
	var r struct {
		ShopName string `json:"shop_name"`
		Region   string `json:"region"`
		Status   string `json:"status"`
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("failed to parse shopee shop info: %w", err)
	}
	return &domain.ShopProfile{ShopID: shopID, Name: r.ShopName, Region: r.Region, Status: r.Status}, nil
}

func shopeeOrderStatus(s string) domain.OrderStatus {
	switch s {
	case "UNPAID":
		return domain.OrderStatusUnpaid
	case "READY_TO_SHIP":
		return domain.OrderStatusReadyToShip
	case "PROCESSED", "RETRY_SHIP":
		return domain.OrderStatusProcessed
	case "SHIPPED", "TO_CONFIRM_RECEIVE":
		return domain.OrderStatusShipped
	case "COMPLETED":
		return domain.OrderStatusCompleted
	case "CANCELLED", "IN_CANCEL":
		return domain.OrderStatusCancelled
	default:
		return domain.OrderStatusUnknown
	}
}

func parseShopeeShopID(shopID string) (int64, error) {
	sid, err := strconv.ParseInt(strings.TrimSpace(shopID), 10, 64)
	if err != nil || sid <= 0 {
		return 0, &errors.ErrValidation{
			Message: "shop_id must be a positive integer",
			Fields:  map[string]string{"shop_id": "must be a positive integer"},
		}
	}
	return sid, nil
}

func queryValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []string:
		return strings.Join(t, ",")
	case time.Time:
		return strconv.FormatInt(t.Unix(), 10)
	default:
		return fmt.Sprint(t)
	}
}

// providerError builds an error from a platform error payload. Non-2xx
// statuses keep their code and status text.
func providerError(platform domain.Platform, op string, status int, code, message string, secrets []string) *errors.ErrProvider {
	msg := Scrub(message, secrets...)
	e := &errors.ErrProvider{Platform: platform, Op: op, Code: code, Message: msg}
	if !IsSuccess(status) && status != 0 {
		e.StatusCode = status
		if msg == "" {
			e.Message = http.StatusText(status)
		} else {
			e.Message = http.StatusText(status) + ": " + msg
		}
	}
	return e
}

func unsupportedStatus(platform domain.Platform, status domain.OrderStatus) error {
	return &errors.ErrValidation{
		Message: fmt.Sprintf("%s does not support setting order status %s", platform, status),
		Fields:  map[string]string{"status": "unsupported target status"},
	}
}
