package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jafarshop/sellerhub/internal/domain"
	"github.com/jafarshop/sellerhub/internal/repository"
)

const TenantContextKey = "tenant"

// AuthMiddleware authenticates admin console requests by tenant API key
func AuthMiddleware(tenants repository.TenantRepository, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			c.Abort()
			return
		}

		// Extract Bearer token
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		apiKey := strings.TrimSpace(parts[1])
		if apiKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			c.Abort()
			return
		}

		// Lookup is by SHA256 of the key; the repository verifies the bcrypt hash
		tenant, err := tenants.GetByAPIKey(c.Request.Context(), apiKey)
		if err != nil {
			logger.Warn("Failed to authenticate tenant", zap.Error(err))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			c.Abort()
			return
		}

		if !tenant.IsActive {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "tenant account is inactive"})
			c.Abort()
			return
		}

		c.Set(TenantContextKey, tenant)
		c.Next()
	}
}

// GetTenantFromContext retrieves the tenant from the Gin context
func GetTenantFromContext(c *gin.Context) (*domain.Tenant, bool) {
	tenant, exists := c.Get(TenantContextKey)
	if !exists {
		return nil, false
	}

	t, ok := tenant.(*domain.Tenant)
	return t, ok
}
