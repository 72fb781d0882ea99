package routes

import (
	"botcontrol/internal/handlers"
	"botcontrol/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupSystemConfigRoutes sets up system param routes. Writes are guarded by
// the scheduler secret since they affect every user.
func SetupSystemConfigRoutes(r *gin.Engine) {
	system := r.Group("/system-config")
	{
		system.GET("/kill-switch", handlers.GetKillSwitch)

		admin := system.Group("")
		admin.Use(middleware.SchedulerAuth())
		{
			admin.GET("", handlers.ListSystemParams)
			admin.POST("", handlers.UpsertSystemParam)
		}
	}
}
