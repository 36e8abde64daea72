package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fee-recon-api/internal/middleware"
	"github.com/noah-isme/fee-recon-api/internal/models"
	appErrors "github.com/noah-isme/fee-recon-api/pkg/errors"
	"github.com/noah-isme/fee-recon-api/pkg/response"
)

// tenantFromContext returns the caller's claims, answering 401 when the
// request carries no school.
func tenantFromContext(c *gin.Context) (*models.JWTClaims, bool) {
	claims, ok := middleware.Claims(c)
	if !ok || claims.SchoolID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return claims, true
}

func cachedJSON(c *gin.Context, data interface{}, hit bool) {
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, data, nil, middleware.ExtractMeta(c))
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
