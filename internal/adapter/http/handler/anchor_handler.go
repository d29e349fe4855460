package handler

import (
	"bluecarbon-registry/internal/adapter/http/dto"
	"bluecarbon-registry/internal/core/domain"
	"bluecarbon-registry/pkg/apperror"
	"bluecarbon-registry/pkg/response"

	"github.com/gin-gonic/gin"
)

// AnchorHandler exposes anchoring records and the administrative retry.
type AnchorHandler struct {
	anchors Anchors
}

func NewAnchorHandler(anchors Anchors) *AnchorHandler {
	return &AnchorHandler{anchors: anchors}
}

// List handles GET /api/v1/anchors, optionally filtered by status.
func (h *AnchorHandler) List(c *gin.Context) {
	status := domain.AnchorStatus(c.Query("status"))
	items := []dto.AnchorResponse{}
	for _, rec := range h.anchors.List() {
		if status != "" && rec.Status != status {
			continue
		}
		items = append(items, dto.ToAnchorResponse(rec))
	}
	response.OK(c, items)
}

// Get handles GET /api/v1/anchors/:id.
func (h *AnchorHandler) Get(c *gin.Context) {
	rec, ok := h.anchors.Get(c.Param("id"))
	if !ok {
		response.Error(c, apperror.ErrNotFound("anchor", c.Param("id")))
		return
	}
	response.OK(c, dto.ToAnchorResponse(rec))
}

// Retry handles POST /api/v1/anchors/:id/retry.
func (h *AnchorHandler) Retry(c *gin.Context) {
	rec, err := h.anchors.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ToAnchorResponse(rec))
}
