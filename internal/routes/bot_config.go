package routes

import (
	"botcontrol/internal/handlers"
	"botcontrol/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupBotConfigRoutes sets up all routes related to bot config management
func SetupBotConfigRoutes(r *gin.Engine) {
	bots := r.Group("/bots")
	bots.Use(middleware.UserAuth())
	{
		// Standard CRUD operations
		bots.GET("", handlers.ListBotConfigs)
		bots.GET("/:id", handlers.GetBotConfig)
		bots.POST("", handlers.CreateBotConfig)
		bots.PUT("/:id", handlers.UpdateBotConfig)
		bots.DELETE("/:id", handlers.DeleteBotConfig)

		// Lifecycle transitions
		bots.POST("/:id/start", handlers.StartBotConfig)
		bots.POST("/:id/pause", handlers.PauseBotConfig)
		bots.POST("/:id/stop", handlers.StopBotConfig)

		// Per-bot audit trail
		bots.GET("/:id/logs", handlers.ListBotActivityLogs)
	}
}
