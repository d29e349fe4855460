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

// ProjectHandler handles project registration, lifecycle and issuance.
type ProjectHandler struct {
	registry Registry
	queries  Queries
}

func NewProjectHandler(reg Registry, queries Queries) *ProjectHandler {
	return &ProjectHandler{registry: reg, queries: queries}
}

// Create handles POST /api/v1/projects.
func (h *ProjectHandler) Create(c *gin.Context) {
	var req dto.CreateProjectRequest
	if !bindJSON(c, &req) {
		return
	}
	dto.SanitizeStruct(&req)

	caller, role := middleware.Caller(c)
	owner := caller
	if req.Owner != "" && req.Owner != caller {
		if role != domain.RoleAdmin {
			response.Error(c, apperror.ErrForbidden("register a project for another owner"))
			return
		}
		owner = req.Owner
	}

	p, err := h.registry.CreateProject(c.Request.Context(), req.ToSpec(owner))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Set(middleware.CtxEntityID, p.ID)
	response.Created(c, p)
}

// List handles GET /api/v1/projects.
func (h *ProjectHandler) List(c *gin.Context) {
	page, pageSize := pageParams(c)
	sendPage(c, h.queries.Projects(c.Request.Context(), projection.ProjectFilter{
		Status:    domain.ProjectStatus(c.Query("status")),
		Ecosystem: domain.EcosystemType(c.Query("type")),
		OwnerID:   c.Query("owner"),
		Search:    c.Query("q"),
		SortBy:    c.Query("sort"),
		Desc:      c.Query("order") == "desc",
		Page:      page,
		PageSize:  pageSize,
	}))
}

// Get handles GET /api/v1/projects/:id.
func (h *ProjectHandler) Get(c *gin.Context) {
	p, err := h.registry.GetProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, p, warnings(h.registry.Warnings(c.Request.Context(), domain.ProjectRef(p.ID)))...)
}

// Suspend handles POST /api/v1/projects/:id/suspend.
func (h *ProjectHandler) Suspend(c *gin.Context) {
	var req dto.ReasonRequest
	if !bindJSON(c, &req) {
		return
	}
	dto.SanitizeStruct(&req)
	h.transition(c, transition.Suspend(req.Reason))
}

// Reinstate handles POST /api/v1/projects/:id/reinstate.
func (h *ProjectHandler) Reinstate(c *gin.Context) {
	h.transition(c, transition.Reinstate())
}

func (h *ProjectHandler) transition(c *gin.Context, ev transition.Event) {
	caller, _ := middleware.Caller(c)
	res, err := h.registry.ApplyTransition(c.Request.Context(), domain.ProjectRef(c.Param("id")), ev.By(caller))
	if err != nil {
		response.Error(c, err)
		return
	}
	sendTransition(c, res)
}

// IssueCredit handles POST /api/v1/projects/:id/credits. Only the project's
// owner or an admin may issue.
func (h *ProjectHandler) IssueCredit(c *gin.Context) {
	var req dto.IssueCreditRequest
	if !bindJSON(c, &req) {
		return
	}
	dto.SanitizeStruct(&req)

	ctx := c.Request.Context()
	p, err := h.registry.GetProject(ctx, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !isOwnerOrAdmin(c, p) {
		response.Error(c, apperror.ErrForbidden("issue credits for this project"))
		return
	}

	res, err := h.registry.IssueCredit(ctx, domain.IssueRequest{
		ProjectID:   p.ID,
		Amount:      req.Amount,
		PricePerTon: req.Price,
		Methodology: req.Methodology,
		Vintage:     req.Vintage,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.IssueCreditResponse{Credit: res.Credit, Project: res.Project}, warnings(res.Warnings)...)
}
