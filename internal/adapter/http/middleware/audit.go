package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"bluecarbon-registry/internal/core/domain"
	"bluecarbon-registry/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditLog records successful write requests against the entity they
// addressed. Handlers that create an entity publish its id under CtxEntityID.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}

		kind, ok := entityForRoute(c.FullPath())
		if !ok {
			return
		}
		id := c.Param("id")
		if id == "" {
			id = c.GetString(CtxEntityID)
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method":     c.Request.Method,
			"route":      c.FullPath(),
			"status":     c.Writer.Status(),
			"request_id": c.GetString(CtxRequestID),
		})

		caller, _ := Caller(c)
		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:         uuid.NewString(),
			EntityKind: kind,
			EntityID:   id,
			Action:     domain.AuditActionHTTPRequest,
			Actor:      caller,
			Severity:   domain.AuditSeverityInfo,
			IPAddress:  c.ClientIP(),
			Details:    string(details),
			CreatedAt:  time.Now().UTC(),
		})
	}
}

func entityForRoute(route string) (domain.EntityKind, bool) {
	switch {
	case strings.HasPrefix(route, "/api/v1/projects"):
		return domain.EntityProject, true
	case strings.HasPrefix(route, "/api/v1/credits"):
		return domain.EntityCredit, true
	case strings.HasPrefix(route, "/api/v1/reviews"):
		return domain.EntityReport, true
	}
	return "", false
}
