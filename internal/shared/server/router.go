package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"research-backend/internal/analysis"
	"research-backend/internal/documents"
	"research-backend/internal/extraction"
	"research-backend/internal/insights"
	"research-backend/internal/services/health"
	"research-backend/internal/shared/config"
	"research-backend/internal/shared/metrics"
	"research-backend/internal/shared/server/middleware"
	"research-backend/internal/shared/server/respond"
	"research-backend/internal/tags"
)

// Analysis calls fan out to the reasoning service, so they get a much
// smaller budget than reads.
var defaultRateLimits = map[string]middleware.RateLimitRule{
	"ANALYZE": {Rate: 0.5, Burst: 5},
	"DEFAULT": {Rate: 20, Burst: 40},
}

// RouterDeps carries the handlers mounted under /api/v1. Nil handlers are
// skipped.
type RouterDeps struct {
	Config          config.Config
	Health          *health.Service
	DocumentHandler *documents.Handler
	AnalysisHandler *analysis.Handler
	SessionHandler  *extraction.Handler
	InsightHandler  *insights.Handler
	TagHandler      *tags.Handler
	RateLimits      map[string]middleware.RateLimitRule
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	limits := deps.RateLimits
	if limits == nil {
		limits = defaultRateLimits
	}
	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		out, ok := deps.Health.Status(c.Request.Context())
		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, out)
	})

	api.Use(middleware.RateLimit(middleware.RateLimitConfig{
		Rules:    limits,
		GroupFor: middleware.AnalyzeRouteGroup,
	}))
	if deps.DocumentHandler != nil {
		deps.DocumentHandler.RegisterRoutes(api)
	}
	if deps.AnalysisHandler != nil {
		deps.AnalysisHandler.RegisterRoutes(api)
	}
	if deps.SessionHandler != nil {
		deps.SessionHandler.RegisterRoutes(api)
	}
	if deps.InsightHandler != nil {
		deps.InsightHandler.RegisterRoutes(api)
	}
	if deps.TagHandler != nil {
		deps.TagHandler.RegisterRoutes(api)
	}

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
