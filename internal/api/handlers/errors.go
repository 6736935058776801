package handlers

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/sellerhub/internal/api/middleware"
	"github.com/jafarshop/sellerhub/internal/domain"
	"github.com/jafarshop/sellerhub/pkg/errors"
)

// respondError maps typed errors to HTTP responses. Anything unrecognised is
// logged and answered with a generic 500.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var (
		validation   *errors.ErrValidation
		invalidArg   *errors.ErrInvalidArgument
		unauthorized *errors.ErrUnauthorized
		forbidden    *errors.ErrForbidden
		notFound     *errors.ErrNotFound
		disabled     *errors.ErrPlatformDisabled
		transition   *errors.ErrInvalidStateTransition
		reauth       *errors.ErrReauthorizationRequired
		state        *errors.ErrInvalidState
		provider     *errors.ErrProvider
		transport    *errors.ErrTransport
	)

	switch {
	case stderrors.As(err, &validation):
		body := gin.H{"error": validation.Error()}
		if len(validation.Fields) > 0 {
			body["fields"] = validation.Fields
		}
		c.JSON(http.StatusBadRequest, body)
	case stderrors.As(err, &invalidArg):
		c.JSON(http.StatusBadRequest, gin.H{"error": invalidArg.Error()})
	case stderrors.As(err, &unauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": unauthorized.Error()})
	case stderrors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": forbidden.Error()})
	case stderrors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Resource + " not found"})
	case stderrors.As(err, &disabled):
		c.JSON(http.StatusNotFound, gin.H{"error": disabled.Error()})
	case stderrors.As(err, &transition):
		c.JSON(http.StatusConflict, gin.H{"error": transition.Error()})
	case stderrors.As(err, &reauth):
		c.JSON(http.StatusConflict, gin.H{
			"error":                    "shop must be reconnected",
			"reauthorization_required": true,
			"platform":                 reauth.Platform,
			"shop_id":                  reauth.ShopID,
		})
	case stderrors.As(err, &state):
		c.JSON(http.StatusBadRequest, gin.H{"error": state.Error()})
	case stderrors.As(err, &provider):
		// Platform 5xx is our upstream failing; everything else is the
		// platform rejecting the request
		status := http.StatusBadRequest
		if provider.StatusCode >= 500 {
			status = http.StatusBadGateway
		}
		logger.Warn("Marketplace rejected request",
			zap.String("platform", string(provider.Platform)),
			zap.String("op", provider.Op),
			zap.String("code", provider.Code),
			zap.Int("status", provider.StatusCode),
		)
		body := gin.H{"error": provider.Message, "platform": provider.Platform}
		if provider.Code != "" {
			body["code"] = provider.Code
		}
		c.JSON(status, body)
	case stderrors.As(err, &transport):
		logger.Warn("Marketplace unreachable", zap.String("platform", string(transport.Platform)), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "marketplace unavailable, retry later", "platform": transport.Platform})
	default:
		logger.Error("Request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// tenantID reads the authenticated tenant, answering 401 when absent
func tenantID(c *gin.Context) (uuid.UUID, bool) {
	tenant, ok := middleware.GetTenantFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return uuid.Nil, false
	}
	return tenant.ID, true
}

// platformParam parses :platform, answering 404 for unknown platforms
func platformParam(c *gin.Context) (domain.Platform, bool) {
	platform, ok := domain.ParsePlatform(c.Param("platform"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown platform"})
		return "", false
	}
	return platform, true
}
