package handler

import (
	"bluecarbon-registry/internal/adapter/http/dto"
	"bluecarbon-registry/internal/adapter/http/middleware"
	"bluecarbon-registry/internal/core/domain"
	"bluecarbon-registry/internal/core/transition"
	"bluecarbon-registry/internal/projection"
	"bluecarbon-registry/pkg/apperror"
	"bluecarbon-registry/pkg/response"

	"github.com/gin-gonic/gin"
)

// CreditHandler handles credit queries and the buyer-side lifecycle.
type CreditHandler struct {
	registry Registry
	queries  Queries
}

func NewCreditHandler(reg Registry, queries Queries) *CreditHandler {
	return &CreditHandler{registry: reg, queries: queries}
}

// List handles GET /api/v1/credits.
func (h *CreditHandler) List(c *gin.Context) {
	page, pageSize := pageParams(c)
	sendPage(c, h.queries.Credits(c.Request.Context(), projection.CreditFilter{
		Status:       domain.CreditStatus(c.Query("status")),
		ProjectID:    c.Query("project_id"),
		AnchorStatus: domain.AnchorStatus(c.Query("anchor_status")),
		Search:       c.Query("q"),
		SortBy:       c.Query("sort"),
		Desc:         c.Query("order") == "desc",
		Page:         page,
		PageSize:     pageSize,
	}))
}

// Get handles GET /api/v1/credits/:id.
func (h *CreditHandler) Get(c *gin.Context) {
	credit, err := h.registry.GetCredit(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, credit, warnings(h.registry.Warnings(c.Request.Context(), domain.CreditRef(credit.ID)))...)
}

// Sell handles POST /api/v1/credits/:id/sell. The buyer defaults to the caller.
func (h *CreditHandler) Sell(c *gin.Context) {
	var req dto.SellRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	dto.SanitizeStruct(&req)

	caller, _ := middleware.Caller(c)
	buyer := req.Buyer
	if buyer == "" {
		buyer = caller
	}
	h.transition(c, transition.Sell(buyer).By(caller))
}

// Retire handles POST /api/v1/credits/:id/retire.
func (h *CreditHandler) Retire(c *gin.Context) {
	caller, _ := middleware.Caller(c)
	h.transition(c, transition.Retire().By(caller))
}

func (h *CreditHandler) transition(c *gin.Context, ev transition.Event) {
	res, err := h.registry.ApplyTransition(c.Request.Context(), domain.CreditRef(c.Param("id")), ev)
	if err != nil {
		response.Error(c, err)
		return
	}
	sendTransition(c, res)
}

// Delete handles DELETE /api/v1/credits/:id. Only pending, unreviewed
// credits can be deleted, by the project owner or an admin.
func (h *CreditHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	credit, err := h.registry.GetCredit(ctx, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	p, err := h.registry.GetProject(ctx, credit.ProjectID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !isOwnerOrAdmin(c, p) {
		response.Error(c, apperror.ErrForbidden("delete this credit"))
		return
	}

	caller, _ := middleware.Caller(c)
	if err := h.registry.DeleteCredit(ctx, credit.ID, caller); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
