package handler

import (
	"context"
	"strconv"

	"bluecarbon-registry/internal/adapter/http/middleware"
	"bluecarbon-registry/internal/core/domain"
	"bluecarbon-registry/internal/core/transition"
	"bluecarbon-registry/internal/projection"
	"bluecarbon-registry/internal/registry"
	"bluecarbon-registry/internal/workflow"
	"bluecarbon-registry/pkg/apperror"
	"bluecarbon-registry/pkg/response"

	"github.com/gin-gonic/gin"
)

// Registry is the write side of the registry store.
type Registry interface {
	CreateProject(ctx context.Context, spec domain.ProjectSpec) (domain.Project, error)
	GetProject(ctx context.Context, id string) (domain.Project, error)
	GetCredit(ctx context.Context, id string) (domain.Credit, error)
	GetReport(ctx context.Context, id string) (domain.VerificationReport, error)
	IssueCredit(ctx context.Context, req domain.IssueRequest) (registry.IssueResult, error)
	DeleteCredit(ctx context.Context, id string, actor string) error
	ApplyTransition(ctx context.Context, ref domain.EntityRef, ev transition.Event) (registry.TransitionResult, error)
	AuditTrail(ctx context.Context, ref domain.EntityRef) []domain.AuditLog
	Warnings(ctx context.Context, ref domain.EntityRef) []domain.Warning
}

// Reviews drives verification reviews.
type Reviews interface {
	StartReview(ctx context.Context, projectID, creditID, verifierID string) (domain.VerificationReport, error)
	RecordFindings(ctx context.Context, reportID string, f domain.Findings, actor string) (domain.VerificationReport, error)
	Decide(ctx context.Context, reportID string, decision domain.Decision, reason, actor string) (workflow.Outcome, error)
}

// Queries is the read-only projection.
type Queries interface {
	Dashboard(ctx context.Context) projection.DashboardStats
	Projects(ctx context.Context, f projection.ProjectFilter) projection.Page[domain.Project]
	Credits(ctx context.Context, f projection.CreditFilter) projection.Page[projection.CreditView]
	Reports(ctx context.Context, f projection.ReportFilter) projection.Page[domain.VerificationReport]
}

// Anchors exposes anchoring records.
type Anchors interface {
	Get(transitionID string) (domain.AnchorRecord, bool)
	List() []domain.AnchorRecord
	Retry(ctx context.Context, transitionID string) (domain.AnchorRecord, error)
}

// bindJSON binds and sanitizes a request body, answering 400 on failure.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return false
	}
	return true
}

// pageParams reads page and page_size; the projection clamps bad values.
func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return page, pageSize
}

func sendPage[T any](c *gin.Context, p projection.Page[T]) {
	response.Page(c, p.Items, response.PageMeta{Page: p.Page, PageSize: p.PageSize, Total: p.Total})
}

// isOwnerOrAdmin reports whether the caller owns the project or is an admin.
func isOwnerOrAdmin(c *gin.Context, p domain.Project) bool {
	caller, role := middleware.Caller(c)
	return role == domain.RoleAdmin || (role == domain.RoleProjectOwner && caller != "" && caller == p.OwnerID)
}

func sendTransition(c *gin.Context, res registry.TransitionResult) {
	response.OK(c, res, warnings(res.Warnings)...)
}

func warnings(ws []domain.Warning) []response.Warning {
	out := make([]response.Warning, 0, len(ws))
	for _, w := range ws {
		out = append(out, response.Warning{Code: w.Code, Message: w.Message})
	}
	return out
}
