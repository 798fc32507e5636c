package corrections

import (
	"github.com/gin-gonic/gin"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/middleware"
)

func RegisterRoutes(router *gin.Engine, handler *Handler, authMiddleware *middleware.AuthMiddleware, limit ...gin.HandlerFunc) {
	group := router.Group("/api/v1/corrections")
	group.Use(authMiddleware.Authenticate())
	{
		submit := append([]gin.HandlerFunc{authMiddleware.RequireEmployee()}, limit...)
		group.POST("", append(submit, handler.Submit)...)
		group.GET("/:id", handler.Get)
	}

	// Admin routes
	adminGroup := group.Group("")
	adminGroup.Use(authMiddleware.RequireAdmin())
	{
		adminGroup.GET("/pending", handler.ListPending)
		adminGroup.PATCH("/:id/approve", handler.Approve)
		adminGroup.PATCH("/:id/reject", handler.Reject)
	}
}
