package handler

import (
	"strconv"

	"bluecarbon-registry/internal/core/domain"
	"bluecarbon-registry/internal/core/ports"
	"bluecarbon-registry/pkg/apperror"
	"bluecarbon-registry/pkg/response"

	"github.com/gin-gonic/gin"
)

// AuditHandler serves an entity's audit trail. With a repository configured
// the durable log is read; otherwise the in-process trail is.
type AuditHandler struct {
	registry Registry
	repo     ports.AuditRepository
}

func NewAuditHandler(reg Registry, repo ports.AuditRepository) *AuditHandler {
	return &AuditHandler{registry: reg, repo: repo}
}

// Trail handles GET /api/v1/audit/:kind/:id.
func (h *AuditHandler) Trail(c *gin.Context) {
	kind := domain.EntityKind(c.Param("kind"))
	switch kind {
	case domain.EntityProject, domain.EntityCredit, domain.EntityReport:
	default:
		response.Error(c, apperror.ErrInvalidSpec("kind must be project, credit or report"))
		return
	}
	id := c.Param("id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	if h.repo != nil {
		logs, err := h.repo.ListByEntity(c.Request.Context(), kind, id, limit)
		if err != nil {
			response.Error(c, apperror.ErrDatabaseError(err))
			return
		}
		response.OK(c, logs)
		return
	}

	trail := h.registry.AuditTrail(c.Request.Context(), domain.EntityRef{Kind: kind, ID: id})
	if trail == nil {
		trail = []domain.AuditLog{}
	}
	if limit > 0 && len(trail) > limit {
		trail = trail[len(trail)-limit:]
	}
	response.OK(c, trail)
}
