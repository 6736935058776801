package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jafarshop/sellerhub/internal/api/handlers"
	"github.com/jafarshop/sellerhub/internal/api/middleware"
	"github.com/jafarshop/sellerhub/internal/config"
	"github.com/jafarshop/sellerhub/internal/metrics"
	"github.com/jafarshop/sellerhub/internal/repository"
	"github.com/jafarshop/sellerhub/internal/service"
)

// Services bundles what the handlers need
type Services struct {
	Flow    *service.OAuthFlow
	Seller  *service.SellerService
	Vip     service.VipService
	Metrics *metrics.Metrics
	// Gatherer backs /metrics; nil disables the endpoint
	Gatherer prometheus.Gatherer
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, repos *repository.Repositories, svc Services, logger *zap.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(customRecovery(logger))
	router.Use(loggingMiddleware(logger))
	router.Use(metricsMiddleware(svc.Metrics))

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": "SellerHub",
			"endpoints": []string{
				"GET /health",
				"POST /v1/integrations/:platform/connect",
				"GET /v1/integrations/:platform/callback",
				"GET /v1/integrations/:platform/accounts",
				"GET /v1/integrations/:platform/orders",
				"PUT /v1/integrations/:platform/orders/:id/status",
				"GET /v1/integrations/:platform/seller/:id/dashboard",
				"POST /v1/integrations/:platform/seller/:id/sync",
				"DELETE /v1/integrations/:platform/disconnect/:id",
				"GET /v1/vip/tiers",
				"GET /v1/vip/progress",
				"GET /v1/customers/:id/vip",
			},
		})
	})

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if svc.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(svc.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/v1")
	{
		// Public: the platform redirects the seller's browser here with no API key
		v1.GET("/integrations/:platform/callback", handlers.HandleCallback(svc.Flow, svc.Seller, cfg.OAuth, logger))
		v1.GET("/vip/tiers", handlers.HandleListTiers(svc.Vip))
		v1.GET("/vip/progress", handlers.HandleVipProgress(svc.Vip, logger))

		tenantRoutes := v1.Group("")
		tenantRoutes.Use(middleware.AuthMiddleware(repos.Tenant, logger))
		tenantRoutes.Use(middleware.IdempotencyMiddleware(repos.Idempotency, logger))
		{
			integrations := tenantRoutes.Group("/integrations/:platform")
			integrations.POST("/connect", handlers.HandleConnect(svc.Flow, logger))
			integrations.GET("/accounts", handlers.HandleListAccounts(svc.Seller, logger))
			integrations.GET("/orders", handlers.HandleListOrders(svc.Seller, logger))
			integrations.PUT("/orders/:id/status", handlers.HandleUpdateOrderStatus(svc.Seller, logger))
			integrations.GET("/seller/:id/dashboard", handlers.HandleDashboard(svc.Seller, logger))
			integrations.POST("/seller/:id/sync", handlers.HandleSync(svc.Seller, logger))
			integrations.DELETE("/disconnect/:id", handlers.HandleDisconnect(svc.Seller, logger))

			tenantRoutes.GET("/customers/:id/vip", handlers.HandleCustomerVip(svc.Vip, logger))
		}
	}

	return router
}

// customRecovery logs panics and answers with a generic 500
func customRecovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Error("Panic recovered",
			zap.Any("error", recovered),
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	})
}

// loggingMiddleware logs HTTP requests. The query string is left out since
// OAuth callbacks carry authorization codes.
func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// metricsMiddleware records request counts and latency by route template
func metricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveHTTP(route, c.Request.Method, strconv.Itoa(c.Writer.Status()), time.Since(start).Seconds())
	}
}
