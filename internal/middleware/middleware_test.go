package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fee-recon-api/internal/models"
	appErrors "github.com/noah-isme/fee-recon-api/pkg/errors"
)

type validatorStub struct{}

func (validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	switch token {
	case "bursar":
		return &models.JWTClaims{UserID: "user-1", SchoolID: "school-1", Role: models.RoleBursar}, nil
	case "viewer":
		return &models.JWTClaims{UserID: "user-2", SchoolID: "school-1", Role: models.RoleViewer}, nil
	case "root":
		return &models.JWTClaims{UserID: "user-3", SchoolID: "school-1", Role: models.RoleSuperAdmin}, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

type recorderStub struct {
	mu      sync.Mutex
	entries []*models.AuditLog
}

func (r *recorderStub) Record(ctx context.Context, entry *models.AuditLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func newRouter(recorder *recorderStub) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/", JWT(validatorStub{}))
	api.POST("/payments/:id/reset", RequireRoles(models.RoleAdmin, models.RoleBursar), Audit(recorder, models.AuditActionPaymentReset, "payment"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	api.POST("/payments/:id/fail", Audit(recorder, models.AuditActionPaymentReset, "payment"), func(c *gin.Context) {
		c.Status(http.StatusConflict)
	})
	return r
}

func serve(r *gin.Engine, path, token string) int {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec.Code
}

func TestJWTAndRoles(t *testing.T) {
	r := newRouter(&recorderStub{})

	assert.Equal(t, http.StatusUnauthorized, serve(r, "/payments/pay-1/reset", ""))
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/payments/pay-1/reset", "forged"))
	assert.Equal(t, http.StatusForbidden, serve(r, "/payments/pay-1/reset", "viewer"))
	assert.Equal(t, http.StatusOK, serve(r, "/payments/pay-1/reset", "bursar"))
	assert.Equal(t, http.StatusOK, serve(r, "/payments/pay-1/reset", "root"))
}

func TestAuditRecordsSuccessfulRequests(t *testing.T) {
	recorder := &recorderStub{}
	r := newRouter(recorder)

	require.Equal(t, http.StatusOK, serve(r, "/payments/pay-1/reset", "bursar"))
	require.Equal(t, http.StatusConflict, serve(r, "/payments/pay-2/fail", "bursar"))

	require.Len(t, recorder.entries, 1)
	entry := recorder.entries[0]
	assert.Equal(t, "school-1", entry.SchoolID)
	assert.Equal(t, "user-1", *entry.UserID)
	assert.Equal(t, "pay-1", *entry.ResourceID)
	assert.Equal(t, models.AuditActionPaymentReset, entry.Action)
	assert.Contains(t, string(entry.Details), `"status":200`)
}

func TestResponseMetaRecordsCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/reports/school", WithResponseMeta(), func(c *gin.Context) {
		SetCacheHit(c, true)
		c.JSON(http.StatusOK, ExtractMeta(c))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/school", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get("X-Report-Cache"))
	assert.Contains(t, rec.Body.String(), `"cache_hit":true`)
	assert.Contains(t, rec.Body.String(), `"processing_time_ms"`)
}
