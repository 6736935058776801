package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/sellerhub/internal/domain"
	"github.com/jafarshop/sellerhub/internal/service"
)

// CustomerVipResponse is a customer's loyalty standing
type CustomerVipResponse struct {
	CustomerID string             `json:"customer_id"`
	Name       string             `json:"name"`
	Progress   domain.VipProgress `json:"progress"`
}

// HandleListTiers handles GET /v1/vip/tiers
func HandleListTiers(vip service.VipService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tiers": vip.Tiers()})
	}
}

// HandleVipProgress handles GET /v1/vip/progress?total_spent=
func HandleVipProgress(vip service.VipService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var query service.ProgressQuery
		if err := c.ShouldBindQuery(&query); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "total_spent must be an integer", "details": err.Error()})
			return
		}

		progress, err := vip.Progress(*query.TotalSpent)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, progress)
	}
}

// HandleCustomerVip handles GET /v1/customers/:id/vip
func HandleCustomerVip(vip service.VipService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, ok := tenantID(c)
		if !ok {
			return
		}

		customerID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid customer ID"})
			return
		}

		customer, progress, err := vip.CustomerProgress(c.Request.Context(), tenant, customerID)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, CustomerVipResponse{
			CustomerID: customer.ID.String(),
			Name:       customer.Name,
			Progress:   progress,
		})
	}
}
