package handler

import (
	"bluecarbon-registry/pkg/response"

	"github.com/gin-gonic/gin"
)

// DashboardHandler serves registry-wide statistics.
type DashboardHandler struct {
	queries Queries
}

func NewDashboardHandler(queries Queries) *DashboardHandler {
	return &DashboardHandler{queries: queries}
}

// GetStats handles GET /api/v1/dashboard/stats.
func (h *DashboardHandler) GetStats(c *gin.Context) {
	response.OK(c, h.queries.Dashboard(c.Request.Context()))
}
