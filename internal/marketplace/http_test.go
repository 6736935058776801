package marketplace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jafarshop/sellerhub/internal/domain"
	"github.com/jafarshop/sellerhub/pkg/errors"
)

func closedServerURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()
	return srv.URL
}

func TestTransportErrorsOmitSecretsAndTokens(t *testing.T) {
	base := closedServerURL(t)
	ctx := context.Background()

	shopee := newTestShopee(t, base)
	tiktok := newTestTikTok(t, base)
	facebook := newTestFacebook(t, base)

	shopeeCall := func() error {
		req, err := shopee.NewAPIRequest(ctx, shopee.ListOrdersCall("5001", fixedNow.Add(-time.Hour), 20), "5001", "shp-ACCESS-TOKEN")
		require.NoError(t, err)
		_, _, err = Do(http.DefaultClient, req, domain.PlatformShopee, "list orders")
		return err
	}

	tests := []struct {
		name    string
		call    func() error
		path    string
		secrets []string
	}{
		{
			name:    "shopee seller call",
			call:    shopeeCall,
			path:    "/api/v2/order/get_order_list",
			secrets: []string{"shp-ACCESS-TOKEN", "partner-secret"},
		},
		{
			name: "tiktok exchange",
			call: func() error {
				_, err := tiktok.ExchangeCode(ctx, "tt-AUTH-CODE", "")
				return err
			},
			secrets: []string{"app-secret", "tt-AUTH-CODE"},
		},
		{
			name: "tiktok refresh",
			call: func() error {
				_, err := tiktok.RefreshToken(ctx, "shop-1", "refresh-SECRET-TOKEN")
				return err
			},
			path:    "/api/v2/token/refresh",
			secrets: []string{"app-secret", "refresh-SECRET-TOKEN"},
		},
		{
			name: "facebook refresh",
			call: func() error {
				_, err := facebook.RefreshToken(ctx, "page-1", "fb-LONG-LIVED-TOKEN")
				return err
			},
			path:    "/oauth/access_token",
			secrets: []string{"fb-secret", "fb-LONG-LIVED-TOKEN"},
		},
		{
			name: "facebook exchange",
			call: func() error {
				_, err := facebook.ExchangeCode(ctx, "fb-AUTH-CODE", "")
				return err
			},
			secrets: []string{"fb-secret", "fb-AUTH-CODE"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)

			var terr *errors.ErrTransport
			require.ErrorAs(t, err, &terr)
			msg := err.Error()
			assert.Contains(t, msg, "transport failure")
			if tt.path != "" {
				assert.Contains(t, msg, tt.path)
			}
			for _, s := range tt.secrets {
				assert.NotContains(t, msg, s)
			}
			assert.NotContains(t, msg, "?")
		})
	}
}

func TestTransportErrorKeepsCause(t *testing.T) {
	cause := &url.Error{Op: "Get", URL: "https://api.example.com/x?access_token=tok&sign=abc", Err: context.DeadlineExceeded}

	err := transportError(domain.PlatformShopee, "list orders", cause)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	var uerr *url.Error
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "https://api.example.com/x", uerr.URL)
	assert.Equal(t, `shopee list orders: transport failure: Get "https://api.example.com/x": context deadline exceeded`, err.Error())
}

func TestStatusErrorScrubsBeforeTruncating(t *testing.T) {
	// the secret starts a few bytes before the cut
	body := strings.Repeat("x", maxSnippetBytes-5) + "partner-secret trailing"

	perr := statusError(domain.PlatformShopee, "list orders", http.StatusBadGateway, []byte(body), []string{"partner-secret"})

	assert.NotContains(t, perr.Message, "partn")
	assert.Equal(t, http.StatusBadGateway, perr.StatusCode)
}

func TestStatusErrorTruncatesOnRuneBoundary(t *testing.T) {
	body := strings.Repeat("a", maxSnippetBytes-1) + "đơn hàng"

	perr := statusError(domain.PlatformTikTok, "list orders", http.StatusInternalServerError, []byte(body), nil)

	assert.True(t, utf8.ValidString(perr.Message))
	assert.Equal(t, "Internal Server Error: "+strings.Repeat("a", maxSnippetBytes-1), perr.Message)
}

func TestAPIRequestCannotOverrideSigningParams(t *testing.T) {
	ctx := context.Background()
	hostile := url.Values{
		"partner_id":      {"9999"},
		"timestamp":       {"1"},
		"sign":            {"forged"},
		"access_token":    {"other-token"},
		"shop_id":         {"7777"},
		"app_key":         {"other-app"},
		"shop_cipher":     {"other-cipher"},
		"appsecret_proof": {"forged"},
		"page_size":       {"20"},
	}

	t.Run("shopee", func(t *testing.T) {
		req, err := newTestShopee(t, "https://partner.example.com").NewAPIRequest(ctx, APICall{
			Method:   http.MethodGet,
			Endpoint: "/api/v2/order/get_order_list",
			Query:    hostile,
			Data:     map[string]interface{}{"sign": "forged", "access_token": "other-token"},
		}, "5001", "tok")
		require.NoError(t, err)

		q := req.URL.Query()
		assert.Equal(t, "2001", q.Get("partner_id"))
		assert.Equal(t, "1700000000", q.Get("timestamp"))
		assert.Equal(t, "tok", q.Get("access_token"))
		assert.Equal(t, "5001", q.Get("shop_id"))
		assert.Equal(t, "20", q.Get("page_size"))
		assert.Equal(t,
			expectedSign("partner-secret", "2001/api/v2/order/get_order_list1700000000tok5001"),
			q.Get("sign"))
	})

	t.Run("tiktok", func(t *testing.T) {
		req, err := newTestTikTok(t, "https://api.example.com").NewAPIRequest(ctx, APICall{
			Method:   http.MethodGet,
			Endpoint: "/order/202309/orders",
			Query:    hostile,
		}, "cipher-1", "tok")
		require.NoError(t, err)

		q := req.URL.Query()
		assert.Equal(t, "app-key", q.Get("app_key"))
		assert.Equal(t, "1700000000", q.Get("timestamp"))
		assert.Equal(t, "cipher-1", q.Get("shop_cipher"))
		assert.NotEqual(t, "forged", q.Get("sign"))

		sign := q.Get("sign")
		q.Del("sign")
		assert.Equal(t, signTikTok("app-secret", "/order/202309/orders", q, nil), sign)
	})

	t.Run("facebook", func(t *testing.T) {
		req, err := newTestFacebook(t, "https://graph.example.com").NewAPIRequest(ctx, APICall{
			Method:   http.MethodGet,
			Endpoint: "/me/accounts",
			Query:    hostile,
			Data:     map[string]interface{}{"access_token": "other-token"},
		}, "", "tok")
		require.NoError(t, err)

		q := req.URL.Query()
		assert.Equal(t, "tok", q.Get("access_token"))
		assert.Equal(t, HMACSHA256Hex("fb-secret", "tok"), q.Get("appsecret_proof"))
	})
}
