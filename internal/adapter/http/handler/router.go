package handler

import (
	"net/http"

	"bluecarbon-registry/internal/adapter/http/middleware"
	"bluecarbon-registry/internal/core/domain"
	"bluecarbon-registry/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Registry       Registry
	Reviews        Reviews
	Queries        Queries
	Anchors        Anchors
	TokenSvc       ports.TokenService
	RateLimiter    ports.RateLimiter // nil = rate limiting disabled
	RateLimit      middleware.RateLimitRule
	AuditSvc       ports.AuditService    // nil = request auditing disabled
	AuditRepo      ports.AuditRepository // nil = audit trail served from memory
	HealthCheckers []ports.HealthChecker
	Gatherer       prometheus.Gatherer // nil = no /metrics
	Mode           string
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Mode != "" {
		gin.SetMode(deps.Mode)
	}
	r := gin.New()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20))

	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	rules := middleware.DefaultRateLimitRules(deps.RateLimit)
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimiter == nil || deps.RateLimit.Limit <= 0 {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimiter, group, rules[group], deps.Logger)
	}

	admin := middleware.RequireRole("perform administrative actions", domain.RoleAdmin)
	verifier := middleware.RequireRole("review credits", domain.RoleVerifier, domain.RoleAdmin)
	owner := middleware.RequireRole("register projects", domain.RoleProjectOwner, domain.RoleAdmin)

	v1 := r.Group("/api/v1", middleware.JWTAuth(deps.TokenSvc, deps.Logger))

	projectHandler := NewProjectHandler(deps.Registry, deps.Queries)
	projects := v1.Group("/projects")
	{
		projects.GET("", rl("read"), projectHandler.List)
		projects.POST("", rl("write"), owner, projectHandler.Create)
		projects.GET("/:id", rl("read"), projectHandler.Get)
		projects.POST("/:id/suspend", rl("admin"), admin, projectHandler.Suspend)
		projects.POST("/:id/reinstate", rl("admin"), admin, projectHandler.Reinstate)
		projects.POST("/:id/credits", rl("issue"), projectHandler.IssueCredit)
	}

	creditHandler := NewCreditHandler(deps.Registry, deps.Queries)
	credits := v1.Group("/credits")
	{
		credits.GET("", rl("read"), creditHandler.List)
		credits.GET("/:id", rl("read"), creditHandler.Get)
		credits.POST("/:id/sell", rl("write"), creditHandler.Sell)
		credits.POST("/:id/retire", rl("write"), creditHandler.Retire)
		credits.DELETE("/:id", rl("write"), creditHandler.Delete)
	}

	reviewHandler := NewReviewHandler(deps.Registry, deps.Reviews, deps.Queries)
	reviews := v1.Group("/reviews")
	{
		reviews.GET("", rl("read"), reviewHandler.List)
		reviews.POST("", rl("review"), verifier, reviewHandler.Start)
		reviews.GET("/:id", rl("read"), reviewHandler.Get)
		reviews.PUT("/:id/findings", rl("review"), verifier, reviewHandler.RecordFindings)
		reviews.POST("/:id/decision", rl("review"), verifier, reviewHandler.Decide)
	}

	dashboardHandler := NewDashboardHandler(deps.Queries)
	v1.GET("/dashboard/stats", rl("read"), dashboardHandler.GetStats)

	if deps.Anchors != nil {
		anchorHandler := NewAnchorHandler(deps.Anchors)
		anchors := v1.Group("/anchors")
		{
			anchors.GET("", rl("read"), anchorHandler.List)
			anchors.GET("/:id", rl("read"), anchorHandler.Get)
			anchors.POST("/:id/retry", rl("admin"), admin, anchorHandler.Retry)
		}
	}

	auditHandler := NewAuditHandler(deps.Registry, deps.AuditRepo)
	v1.GET("/audit/:kind/:id", rl("read"), auditHandler.Trail)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error_code": "SYS_404", "message": "route not found"})
	})

	return r
}
