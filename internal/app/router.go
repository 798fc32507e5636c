package app

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/middleware"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/observability"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/security"
	"github.com/waqasmani/attendance-scheduler/internal/modules/attendance"
	"github.com/waqasmani/attendance-scheduler/internal/modules/corrections"
	"github.com/waqasmani/attendance-scheduler/internal/modules/health"
	"github.com/waqasmani/attendance-scheduler/internal/modules/tenants"
)

const maxBodyBytes = 1 << 20

func SetupRouter(container *Container) *gin.Engine {
	if container.Config.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	if len(container.Config.Server.TrustedProxies) > 0 {
		_ = router.SetTrustedProxies(container.Config.Server.TrustedProxies)
	}

	router.Use(gin.Recovery())
	router.Use(middleware.PanicRecoveryMiddleware(container.Logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware(observability.NewTracer("http"), container.Logger))
	router.Use(middleware.LoggerMiddleware(container.Logger))
	router.Use(middleware.TimeoutMiddleware(30 * time.Second))
	router.Use(middleware.BodyLimitMiddleware(maxBodyBytes))
	router.Use(middleware.NewCORSMiddleware(container.Config.CORS))
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.ErrorHandlingMiddleware(container.Logger, container.Metrics))

	if container.Config.Metrics.Enabled {
		router.Use(middleware.MetricsMiddleware(container.Metrics))
	}

	var punchLimit, submitLimit []gin.HandlerFunc
	if rl := container.Config.RateLimit; rl.Enabled {
		punchLimit = append(punchLimit, security.RouteRateLimitMiddleware(container.RateLimiter, container.Logger, container.Metrics, "punch", rl.Requests, rl.Window))
		submitLimit = append(submitLimit, security.RouteRateLimitMiddleware(container.RateLimiter, container.Logger, container.Metrics, "corrections", rl.Requests, rl.Window))
	}

	health.RegisterRoutes(router, container.HealthHandler)
	attendance.RegisterRoutes(router, container.AttendanceHandler, container.AuthMiddleware, punchLimit...)
	corrections.RegisterRoutes(router, container.CorrectionsHandler, container.AuthMiddleware, submitLimit...)
	tenants.RegisterRoutes(router, container.TenantsHandler, container.AuthMiddleware)

	if container.Config.Metrics.Enabled {
		handler := promhttp.Handler()
		if g := container.Metrics.Gatherer(); g != nil {
			handler = promhttp.HandlerFor(g, promhttp.HandlerOpts{})
		}
		router.GET("/api/v1/metrics", gin.WrapH(handler))
	}

	return router
}
