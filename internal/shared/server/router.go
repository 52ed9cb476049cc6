package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"intake-portal/internal/analyses"
	"intake-portal/internal/auth"
	"intake-portal/internal/portal"
	"intake-portal/internal/services/health"
	"intake-portal/internal/shared/config"
	"intake-portal/internal/shared/metrics"
	"intake-portal/internal/shared/server/middleware"
	"intake-portal/internal/shared/server/respond"
	localstore "intake-portal/internal/shared/storage/object/local"
)

// RouterDeps are the handlers and settings the router mounts.
type RouterDeps struct {
	Config   config.Config
	Tokens   *auth.TokenIssuer
	Health   *health.Service
	Portal   *portal.Handler
	Analyses *analyses.Handler
	// Blobs serves signed links of the local object store; nil for other backends.
	Blobs *localstore.Handler
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.RateLimit(middleware.RateLimitConfig{
			GroupFor: middleware.PostsOnly,
			Rules: map[string]middleware.RateLimitRule{
				"DEFAULT": {Rate: deps.Config.RateLimitRPS, Burst: deps.Config.RateLimitBurst},
			},
		}),
		middleware.BodyLimit(deps.Config.MaxUploadBytes),
		middleware.Session(deps.Tokens),
	)

	r.GET("/healthz", func(c *gin.Context) {
		body, ok := deps.Health.Status(c.Request.Context())
		if !ok {
			respond.JSON(c, http.StatusServiceUnavailable, body)
			return
		}
		respond.JSON(c, http.StatusOK, body)
	})
	r.GET("/metrics", metrics.Handler())

	if deps.Portal != nil {
		deps.Portal.RegisterRoutes(r)
	}
	if deps.Analyses != nil {
		attorney := r.Group("/attorney", middleware.RequireRole(auth.RoleAttorney))
		deps.Analyses.RegisterRoutes(attorney)
	}
	if deps.Blobs != nil {
		deps.Blobs.RegisterRoutes(r)
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
