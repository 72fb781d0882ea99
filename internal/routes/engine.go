package routes

import (
	"botcontrol/internal/handlers"
	"botcontrol/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupEngineRoutes sets up the execution endpoints. Single-bot execution is
// user-scoped; batch endpoints require the scheduler shared secret.
func SetupEngineRoutes(r *gin.Engine) {
	engine := r.Group("/engine")
	{
		user := engine.Group("")
		user.Use(middleware.UserAuth())
		{
			user.POST("/bots/:id/execute", handlers.ExecuteBot)
		}

		scheduler := engine.Group("")
		scheduler.Use(middleware.SchedulerAuth())
		{
			scheduler.POST("/execute-all", handlers.ExecuteAllBots)
			scheduler.POST("/run-loop", handlers.RunLoop)
		}

		// Public market and clock diagnostics
		engine.GET("/market-data", handlers.GetMarketData)
		engine.GET("/time", handlers.GetServerTime)
	}
}
