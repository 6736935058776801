package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jafarshop/sellerhub/internal/domain"
	"github.com/jafarshop/sellerhub/internal/marketplace"
	"github.com/jafarshop/sellerhub/pkg/errors"
)

// fakeProvider speaks a minimal protocol against an httptest server
type fakeProvider struct {
	baseURL string

	exchangeTokens *marketplace.TokenSet
	exchangeErr    error

	refreshCalls atomic.Int32
	refreshDelay time.Duration
	refreshTTL   time.Duration
	refreshErr   error
}

func newFakeProvider(baseURL string) *fakeProvider {
	return &fakeProvider{baseURL: baseURL, refreshTTL: 4 * time.Hour}
}

func (p *fakeProvider) Platform() domain.Platform { return domain.PlatformShopee }

func (p *fakeProvider) PartnerID() string { return "2001" }

func (p *fakeProvider) Secrets() []string { return nil }

func (p *fakeProvider) AuthURL(state string) (string, error) {
	return "https://auth.example.com/authorize?state=" + state, nil
}

func (p *fakeProvider) ExchangeCode(_ context.Context, code, shopID string) (*marketplace.TokenSet, error) {
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	if p.exchangeTokens != nil {
		return p.exchangeTokens, nil
	}
	return &marketplace.TokenSet{
		AccessToken:  "access-" + code,
		RefreshToken: "refresh-" + code,
		ExpiresIn:    4 * time.Hour,
		ShopID:       shopID,
	}, nil
}

func (p *fakeProvider) RefreshToken(_ context.Context, shopID, _ string) (*marketplace.TokenSet, error) {
	n := p.refreshCalls.Add(1)
	if p.refreshDelay > 0 {
		time.Sleep(p.refreshDelay)
	}
	if p.refreshErr != nil {
		return nil, p.refreshErr
	}
	return &marketplace.TokenSet{
		AccessToken:  fmt.Sprintf("access-r%d", n),
		RefreshToken: fmt.Sprintf("refresh-r%d", n),
		ExpiresIn:    p.refreshTTL,
		ShopID:       shopID,
	}, nil
}

func (p *fakeProvider) NewAPIRequest(ctx context.Context, call marketplace.APICall, shopID, accessToken string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, call.Method, p.baseURL+call.Endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Access-Token", accessToken)
	req.Header.Set("X-Shop-Id", shopID)
	return req, nil
}

func (p *fakeProvider) CheckResponse(op string, status int, body []byte) error {
	var r struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &r)
	if r.Error != "" {
		return &errors.ErrProvider{Platform: p.Platform(), Op: op, Code: r.Error, Message: r.Error}
	}
	if !marketplace.IsSuccess(status) {
		return &errors.ErrProvider{Platform: p.Platform(), Op: op, Message: http.StatusText(status), StatusCode: status}
	}
	return nil
}

func (p *fakeProvider) ListOrdersCall(_ string, _ time.Time, _ int) marketplace.APICall {
	return marketplace.APICall{Method: http.MethodGet, Endpoint: "/orders"}
}

func (p *fakeProvider) ParseOrders(body []byte) ([]domain.MarketplaceOrder, error) {
	var r struct {
		Orders []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"orders"`
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, err
	}
	out := make([]domain.MarketplaceOrder, 0, len(r.Orders))
	for _, o := range r.Orders {
		out = append(out, domain.MarketplaceOrder{OrderID: o.ID, RawStatus: o.Status, Status: domain.OrderStatus(o.Status)})
	}
	return out, nil
}

func (p *fakeProvider) UpdateOrderStatusCall(_ string, orderID string, status domain.OrderStatus) (marketplace.APICall, error) {
	if status.Normalize() != domain.OrderStatusCancelled {
		return marketplace.APICall{}, &errors.ErrValidation{Message: "unsupported"}
	}
	return marketplace.APICall{Method: http.MethodPost, Endpoint: "/orders/" + orderID + "/cancel"}, nil
}

func (p *fakeProvider) ShopInfoCall(_ string) marketplace.APICall {
	return marketplace.APICall{Method: http.MethodGet, Endpoint: "/shop"}
}

func (p *fakeProvider) ParseShopInfo(shopID string, body []byte) (*domain.ShopProfile, error) {
	var r struct {
		Name   string `json:"name"`
		Region string `json:"region"`
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, err
	}
	return &domain.ShopProfile{ShopID: shopID, Name: r.Name, Region: r.Region}, nil
}
