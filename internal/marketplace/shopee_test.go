package marketplace

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jafarshop/sellerhub/internal/config"
	"github.com/jafarshop/sellerhub/internal/domain"
	"github.com/jafarshop/sellerhub/pkg/errors"
)

var fixedNow = time.Unix(1700000000, 0)

func expectedSign(key, base string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(base))
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestShopee(t *testing.T, baseURL string) Provider {
	t.Helper()
	p, err := NewShopee(config.ShopeeConfig{
		PartnerID:   "2001",
		PartnerKey:  "partner-secret",
		RedirectURI: "https://admin.example.com/v1/integrations/shopee/callback",
		Region:      "vn",
	}, baseURL, Options{Now: func() time.Time { return fixedNow }})
	require.NoError(t, err)
	return p
}

func TestShopeeBaseURL(t *testing.T) {
	assert.Equal(t, "https://partner.shopeemobile.com", ShopeeBaseURL("vn"))
	assert.Equal(t, "https://partner.shopeemobile.com", ShopeeBaseURL("global"))
	assert.Equal(t, "https://openplatform.shopee.cn", ShopeeBaseURL("CN"))
	assert.Equal(t, "https://partner.test-stable.shopeemobile.com", ShopeeBaseURL("sandbox"))
}

func TestNewShopeeRequiresCredentials(t *testing.T) {
	_, err := NewShopee(config.ShopeeConfig{PartnerID: "2001"}, "", Options{})
	var disabled *errors.ErrPlatformDisabled
	assert.ErrorAs(t, err, &disabled)

	_, err = NewShopee(config.ShopeeConfig{PartnerID: "abc", PartnerKey: "k", RedirectURI: "https://x"}, "", Options{})
	assert.ErrorContains(t, err, "numeric")
}

func TestShopeeAuthURLSignature(t *testing.T) {
	p := newTestShopee(t, "")

	raw, err := p.AuthURL("state-123")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "partner.shopeemobile.com", u.Host)
	assert.Equal(t, "/api/v2/shop/auth_partner", u.Path)

	q := u.Query()
	assert.Equal(t, "2001", q.Get("partner_id"))
	assert.Equal(t, "1700000000", q.Get("timestamp"))
	assert.Equal(t, expectedSign("partner-secret", "2001/api/v2/shop/auth_partner1700000000"), q.Get("sign"))

	redirect, err := url.Parse(q.Get("redirect"))
	require.NoError(t, err)
	assert.Equal(t, "state-123", redirect.Query().Get("state"))
	assert.NotContains(t, raw, "partner-secret")
}

func TestShopeeExchangeCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v2/auth/token/get", r.URL.Path)
		assert.Equal(t, expectedSign("partner-secret", "2001/api/v2/auth/token/get1700000000"), r.URL.Query().Get("sign"))

		body, _ := io.ReadAll(r.Body)
		var payload map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, "the-code", payload["code"])
		assert.Equal(t, float64(5001), payload["shop_id"])
		assert.Equal(t, float64(2001), payload["partner_id"])

		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expire_in":14400,"error":"","message":""}`))
	}))
	defer srv.Close()

	tokens, err := newTestShopee(t, srv.URL).ExchangeCode(context.Background(), "the-code", "5001")
	require.NoError(t, err)
	assert.Equal(t, "at", tokens.AccessToken)
	assert.Equal(t, "rt", tokens.RefreshToken)
	assert.Equal(t, 4*time.Hour, tokens.ExpiresIn)
	assert.Equal(t, "5001", tokens.ShopID)
}

func TestShopeeExchangeCodeProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"error_auth","message":"Invalid code, partner-secret mismatch","request_id":"r1"}`))
	}))
	defer srv.Close()

	_, err := newTestShopee(t, srv.URL).ExchangeCode(context.Background(), "bad", "5001")
	var perr *errors.ErrProvider
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "error_auth", perr.Code)
	assert.NotContains(t, perr.Error(), "partner-secret")
	assert.Contains(t, perr.Message, "[redacted]")
}

func TestShopeeExchangeCodeTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	_, err := newTestShopee(t, srv.URL).ExchangeCode(context.Background(), "code", "5001")
	var terr *errors.ErrTransport
	assert.ErrorAs(t, err, &terr)
}

func TestShopeeExchangeCodeRejectsBadShopID(t *testing.T) {
	_, err := newTestShopee(t, "http://unused").ExchangeCode(context.Background(), "code", "shop-abc")
	var verr *errors.ErrValidation
	assert.ErrorAs(t, err, &verr)
}

func TestShopeeAPIRequestSignature(t *testing.T) {
	p := newTestShopee(t, "https://partner.example.com")

	req, err := p.NewAPIRequest(context.Background(), APICall{
		Method:   http.MethodGet,
		Endpoint: "/api/v2/order/get_order_list",
		Data:     map[string]interface{}{"page_size": 20},
	}, "5001", "tok")
	require.NoError(t, err)

	q := req.URL.Query()
	assert.Equal(t, "tok", q.Get("access_token"))
	assert.Equal(t, "5001", q.Get("shop_id"))
	assert.Equal(t, "20", q.Get("page_size"))
	assert.Equal(t,
		expectedSign("partner-secret", "2001/api/v2/order/get_order_list1700000000tok5001"),
		q.Get("sign"))
}

func TestShopeeCheckResponse(t *testing.T) {
	p := newTestShopee(t, "")

	assert.NoError(t, p.CheckResponse("op", 200, []byte(`{"error":"","response":{}}`)))

	err := p.CheckResponse("op", 200, []byte(`{"error":"invalid_access_token","message":"expired"}`))
	var perr *errors.ErrProvider
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "invalid_access_token", perr.Code)
	assert.Zero(t, perr.StatusCode)

	err = p.CheckResponse("op", 403, []byte(`<html>denied</html>`))
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 403, perr.StatusCode)
	assert.Contains(t, perr.Message, "Forbidden")
}

func TestShopeeOrders(t *testing.T) {
	p := newTestShopee(t, "")

	call := p.ListOrdersCall("5001", fixedNow.Add(-60*24*time.Hour), 50)
	assert.Equal(t, fixedNow.Add(-shopeeMaxOrderRange).Unix(), call.Data["time_from"])

	orders, err := p.ParseOrders([]byte(`{"response":{"order_list":[
		{"order_sn":"A1","order_status":"READY_TO_SHIP"},
		{"order_sn":"A2","order_status":"IN_CANCEL"},
		{"order_sn":"A3","order_status":"TO_RETURN"}]}}`))
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Equal(t, domain.OrderStatusReadyToShip, orders[0].Status)
	assert.Equal(t, domain.OrderStatusCancelled, orders[1].Status)
	assert.Equal(t, domain.OrderStatusUnknown, orders[2].Status)

	cancel, err := p.UpdateOrderStatusCall("5001", "A1", "canceled")
	require.NoError(t, err)
	assert.Equal(t, "/api/v2/order/cancel_order", cancel.Endpoint)

	_, err = p.UpdateOrderStatusCall("5001", "A1", domain.OrderStatusCompleted)
	var verr *errors.ErrValidation
	assert.ErrorAs(t, err, &verr)
}
