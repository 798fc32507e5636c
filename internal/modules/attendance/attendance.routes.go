package attendance

import (
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/middleware"
)

// RegisterRoutes mounts the ledger endpoints. limit, when given, runs in front
// of the punch handlers.
func RegisterRoutes(router *gin.Engine, handler *Handler, authMiddleware *middleware.AuthMiddleware, limit ...gin.HandlerFunc) {
	// Employee routes (authenticated)
	attendanceGroup := router.Group("/api/v1/attendance")
	attendanceGroup.Use(authMiddleware.Authenticate(), authMiddleware.RequireEmployee())
	{
		attendanceGroup.POST("/check-in", slices.Concat(limit, []gin.HandlerFunc{handler.CheckIn})...)
		attendanceGroup.POST("/check-out", slices.Concat(limit, []gin.HandlerFunc{handler.CheckOut})...)
		attendanceGroup.GET("/today", handler.Today)
	}
}
