package routes

import (
	"botcontrol/internal/handlers"
	"botcontrol/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupActivityLogRoutes sets up all routes related to the activity log
func SetupActivityLogRoutes(r *gin.Engine) {
	logs := r.Group("/activity-logs")
	logs.Use(middleware.UserAuth())
	{
		logs.GET("", handlers.ListActivityLogs)
	}
}
