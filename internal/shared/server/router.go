package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rateshop-backend/internal/jobs"
	"rateshop-backend/internal/shared/auth"
	"rateshop-backend/internal/shared/config"
	"rateshop-backend/internal/shared/metrics"
	"rateshop-backend/internal/shared/server/middleware"
	"rateshop-backend/internal/shared/server/respond"
)

// RouterDeps are the handlers and collaborators the router mounts.
type RouterDeps struct {
	Config     config.Config
	Verifier   auth.Verifier
	JobHandler *jobs.Handler
	// Ready reports backing-store health for /healthz. Nil means always ready.
	Ready func(ctx context.Context) error
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.Auth(deps.Verifier, "/healthz", "/metrics"),
	)

	r.GET("/healthz", func(c *gin.Context) {
		if deps.Ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := deps.Ready(ctx); err != nil {
				respond.Error(c, http.StatusServiceUnavailable, "unavailable", "dependency check failed", nil)
				return
			}
		}
		respond.OK(c, gin.H{"ok": true})
	})
	r.GET("/metrics", metrics.Handler())

	root := r.Group("")
	registerMeRoutes(root)
	if deps.JobHandler != nil {
		deps.JobHandler.RegisterRoutes(root)
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
