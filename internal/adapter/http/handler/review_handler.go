package handler

import (
	"bluecarbon-registry/internal/adapter/http/dto"
	"bluecarbon-registry/internal/adapter/http/middleware"
	"bluecarbon-registry/internal/core/domain"
	"bluecarbon-registry/internal/projection"
	"bluecarbon-registry/pkg/apperror"
	"bluecarbon-registry/pkg/response"

	"github.com/gin-gonic/gin"
)

// ReviewHandler handles verification reviews.
type ReviewHandler struct {
	registry Registry
	reviews  Reviews
	queries  Queries
}

func NewReviewHandler(reg Registry, reviews Reviews, queries Queries) *ReviewHandler {
	return &ReviewHandler{registry: reg, reviews: reviews, queries: queries}
}

// Start handles POST /api/v1/reviews. The caller becomes the report's verifier.
func (h *ReviewHandler) Start(c *gin.Context) {
	var req dto.StartReviewRequest
	if !bindJSON(c, &req) {
		return
	}
	dto.SanitizeStruct(&req)

	caller, _ := middleware.Caller(c)
	report, err := h.reviews.StartReview(c.Request.Context(), req.ProjectID, req.CreditID, caller)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Set(middleware.CtxEntityID, report.ID)
	response.Created(c, report)
}

// List handles GET /api/v1/reviews.
func (h *ReviewHandler) List(c *gin.Context) {
	page, pageSize := pageParams(c)
	sendPage(c, h.queries.Reports(c.Request.Context(), projection.ReportFilter{
		Status:     domain.ReportStatus(c.Query("status")),
		ProjectID:  c.Query("project_id"),
		CreditID:   c.Query("credit_id"),
		VerifierID: c.Query("verifier"),
		Page:       page,
		PageSize:   pageSize,
	}))
}

// Get handles GET /api/v1/reviews/:id.
func (h *ReviewHandler) Get(c *gin.Context) {
	report, err := h.registry.GetReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, report, warnings(h.registry.Warnings(c.Request.Context(), domain.ReportRef(report.ID)))...)
}

// RecordFindings handles PUT /api/v1/reviews/:id/findings. Only the
// report's verifier or an admin may edit findings.
func (h *ReviewHandler) RecordFindings(c *gin.Context) {
	var req dto.FindingsRequest
	if !bindJSON(c, &req) {
		return
	}
	dto.SanitizeStruct(&req)

	ctx := c.Request.Context()
	report, err := h.registry.GetReport(ctx, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	caller, role := middleware.Caller(c)
	if role != domain.RoleAdmin && report.VerifierID != caller {
		response.Error(c, apperror.ErrForbidden("edit another verifier's findings"))
		return
	}

	updated, err := h.reviews.RecordFindings(ctx, report.ID, req.ToFindings(), caller)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, updated)
}

// Decide handles POST /api/v1/reviews/:id/decision.
func (h *ReviewHandler) Decide(c *gin.Context) {
	var req dto.DecisionRequest
	if !bindJSON(c, &req) {
		return
	}
	dto.SanitizeStruct(&req)

	caller, _ := middleware.Caller(c)
	outcome, err := h.reviews.Decide(c.Request.Context(), c.Param("id"), domain.Decision(req.Decision), req.Reason, caller)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, outcome, warnings(outcome.Transition.Warnings)...)
}
