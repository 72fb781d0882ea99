package routes

import (
	"botcontrol/internal/handlers"
	"botcontrol/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupTradeRecordRoutes sets up all routes related to trade records
func SetupTradeRecordRoutes(r *gin.Engine) {
	trades := r.Group("/trades")
	trades.Use(middleware.UserAuth())
	{
		trades.GET("", handlers.ListTradeRecords)
		trades.GET("/:id", handlers.GetTradeRecord)
		trades.POST("/:id/close", handlers.CloseTradeRecord)
	}
}
