package handlers

import (
	stderrors "errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jafarshop/sellerhub/internal/config"
	"github.com/jafarshop/sellerhub/internal/domain"
	"github.com/jafarshop/sellerhub/internal/service"
	"github.com/jafarshop/sellerhub/pkg/errors"
)

// AccountResponse is a business account without its tokens
type AccountResponse struct {
	ID             string                  `json:"id"`
	Platform       domain.Platform         `json:"platform"`
	ShopID         string                  `json:"shop_id"`
	ShopName       string                  `json:"shop_name"`
	Region         *string                 `json:"region,omitempty"`
	Status         domain.ConnectionStatus `json:"status"`
	TokenExpiresAt *string                 `json:"token_expires_at,omitempty"`
	LastSyncedAt   *string                 `json:"last_synced_at,omitempty"`
	CreatedAt      string                  `json:"created_at"`
	UpdatedAt      string                  `json:"updated_at"`
}

// DashboardResponse summarises one connected shop
type DashboardResponse struct {
	Account      AccountResponse            `json:"account"`
	Profile      *domain.ShopProfile        `json:"profile,omitempty"`
	RecentOrders []domain.MarketplaceOrder  `json:"recent_orders"`
	OrderCounts  map[domain.OrderStatus]int `json:"order_counts"`
	NeedsReauth  bool                       `json:"needs_reauth"`
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func toAccountResponse(a *domain.BusinessAccount) AccountResponse {
	return AccountResponse{
		ID:             a.ID.String(),
		Platform:       a.Platform,
		ShopID:         a.ShopID,
		ShopName:       a.ShopName,
		Region:         a.Region,
		Status:         a.Status,
		TokenExpiresAt: formatTime(a.TokenExpiresAt),
		LastSyncedAt:   formatTime(a.LastSyncedAt),
		CreatedAt:      a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      a.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// HandleConnect handles POST /v1/integrations/:platform/connect
func HandleConnect(flow *service.OAuthFlow, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, ok := tenantID(c)
		if !ok {
			return
		}
		platform, ok := platformParam(c)
		if !ok {
			return
		}

		var req service.ConnectRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
				return
			}
		}

		result, err := flow.Start(c.Request.Context(), platform, tenant, req.RedirectPath)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// HandleCallback handles GET /v1/integrations/:platform/callback. The platform
// redirects the seller's browser here, so every outcome is a redirect back to
// the admin console with status and reason in the query.
func HandleCallback(flow *service.OAuthFlow, seller *service.SellerService, cfg config.OAuthConfig, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		platform, ok := platformParam(c)
		if !ok {
			return
		}

		code := c.Query("code")
		shopID := c.Query("shop_id")
		if denied := c.Query("error"); denied != "" {
			// still consume the state so it cannot be replayed
			code = ""
		}

		result, err := flow.Complete(c.Request.Context(), platform, c.Query("state"), code, shopID)
		var disabled *errors.ErrPlatformDisabled
		if stderrors.As(err, &disabled) {
			respondError(c, logger, err)
			return
		}

		q := url.Values{}
		q.Set("platform", string(platform))
		if err != nil {
			q.Set("status", "error")
			q.Set("reason", callbackReason(c, err))
		} else {
			seller.SyncAfterConnect(c.Request.Context(), result.Account)
			q.Set("status", "success")
			q.Set("shop_id", result.Account.ShopID)
		}

		c.Redirect(http.StatusFound, cfg.SuccessBaseURL+result.RedirectPath+"?"+q.Encode())
	}
}

func callbackReason(c *gin.Context, err error) string {
	if c.Query("error") != "" {
		return "access_denied"
	}
	var transport *errors.ErrTransport
	switch {
	case service.IsInvalidState(err):
		return "invalid_state"
	case stderrors.As(err, &transport):
		return "unavailable"
	default:
		return "exchange_failed"
	}
}

// HandleListAccounts handles GET /v1/integrations/:platform/accounts
func HandleListAccounts(seller *service.SellerService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, ok := tenantID(c)
		if !ok {
			return
		}
		platform, ok := platformParam(c)
		if !ok {
			return
		}

		accounts, err := seller.ListAccounts(c.Request.Context(), tenant, platform)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		out := make([]AccountResponse, 0, len(accounts))
		for _, a := range accounts {
			out = append(out, toAccountResponse(a))
		}
		c.JSON(http.StatusOK, gin.H{"accounts": out})
	}
}

// HandleListOrders handles GET /v1/integrations/:platform/orders
func HandleListOrders(seller *service.SellerService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, ok := tenantID(c)
		if !ok {
			return
		}
		platform, ok := platformParam(c)
		if !ok {
			return
		}

		var query service.ListOrdersQuery
		if err := c.ShouldBindQuery(&query); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query", "details": err.Error()})
			return
		}
		q := service.OrderQuery{ShopID: query.ShopID, PageSize: query.PageSize}
		if query.Since > 0 {
			q.Since = time.Unix(query.Since, 0)
		}

		orders, err := seller.ListOrders(c.Request.Context(), tenant, platform, q)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
	}
}

// HandleUpdateOrderStatus handles PUT /v1/integrations/:platform/orders/:id/status
func HandleUpdateOrderStatus(seller *service.SellerService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, ok := tenantID(c)
		if !ok {
			return
		}
		platform, ok := platformParam(c)
		if !ok {
			return
		}

		var req service.UpdateOrderStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
			return
		}

		orderID := c.Param("id")
		target := domain.OrderStatus(req.Status).Normalize()
		err := seller.UpdateOrderStatus(c.Request.Context(), tenant, platform, req.ShopID, orderID,
			domain.OrderStatus(req.CurrentStatus), target)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"order_id": orderID, "status": target})
	}
}

// HandleDashboard handles GET /v1/integrations/:platform/seller/:id/dashboard
func HandleDashboard(seller *service.SellerService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, ok := tenantID(c)
		if !ok {
			return
		}
		platform, ok := platformParam(c)
		if !ok {
			return
		}

		dash, err := seller.Dashboard(c.Request.Context(), tenant, platform, c.Param("id"))
		if err != nil {
			respondError(c, logger, err)
			return
		}
		orders := dash.RecentOrders
		if orders == nil {
			orders = []domain.MarketplaceOrder{}
		}
		c.JSON(http.StatusOK, DashboardResponse{
			Account:      toAccountResponse(dash.Account),
			Profile:      dash.Profile,
			RecentOrders: orders,
			OrderCounts:  dash.OrderCounts,
			NeedsReauth:  dash.NeedsReauth,
		})
	}
}

// HandleSync handles POST /v1/integrations/:platform/seller/:id/sync
func HandleSync(seller *service.SellerService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, ok := tenantID(c)
		if !ok {
			return
		}
		platform, ok := platformParam(c)
		if !ok {
			return
		}

		account, err := seller.Sync(c.Request.Context(), tenant, platform, c.Param("id"))
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, toAccountResponse(account))
	}
}

// HandleDisconnect handles DELETE /v1/integrations/:platform/disconnect/:id
func HandleDisconnect(seller *service.SellerService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, ok := tenantID(c)
		if !ok {
			return
		}
		platform, ok := platformParam(c)
		if !ok {
			return
		}

		if err := seller.Disconnect(c.Request.Context(), tenant, platform, c.Param("id")); err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": domain.ConnectionStatusDisconnected, "shop_id": c.Param("id")})
	}
}
