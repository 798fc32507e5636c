package tenants

import (
	"github.com/gin-gonic/gin"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/middleware"
)

func RegisterRoutes(router *gin.Engine, handler *Handler, authMiddleware *middleware.AuthMiddleware) {
	group := router.Group("/api/v1/tenant")
	group.Use(authMiddleware.Authenticate())
	{
		group.GET("/holidays", handler.ListHolidays)
	}

	// Admin routes
	adminGroup := group.Group("")
	adminGroup.Use(authMiddleware.RequireAdmin())
	{
		adminGroup.GET("/settings", handler.GetSettings)
		adminGroup.PUT("/settings", handler.UpdateSettings)
		adminGroup.POST("/activate", handler.Activate)
		adminGroup.POST("/deactivate", handler.Deactivate)
	}
}
