package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fee-recon-api/internal/models"
	"github.com/noah-isme/fee-recon-api/pkg/middleware/requestid"
)

type auditRecorder interface {
	Record(ctx context.Context, entry *models.AuditLog)
}

// Audit records an audit trail entry after successful requests. The :id path
// parameter, when present, becomes the resource ID.
func Audit(recorder auditRecorder, action, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if recorder == nil || c.Writer.Status() >= 400 {
			return
		}
		claims, ok := Claims(c)
		if !ok {
			return
		}

		var resourceID *string
		if id := c.Param("id"); id != "" {
			resourceID = &id
		}

		details, _ := json.Marshal(map[string]interface{}{
			"path":       c.FullPath(),
			"method":     c.Request.Method,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"request_id": requestid.Value(c),
			"role":       claims.Role,
		})

		userID := claims.UserID
		recorder.Record(context.WithoutCancel(c.Request.Context()), &models.AuditLog{
			SchoolID:   claims.SchoolID,
			UserID:     &userID,
			Action:     action,
			Resource:   resource,
			ResourceID: resourceID,
			Details:    details,
			IPAddress:  c.ClientIP(),
			UserAgent:  c.GetHeader("User-Agent"),
			CreatedAt:  start,
		})
	}
}
