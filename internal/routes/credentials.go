package routes

import (
	"botcontrol/internal/handlers"
	"botcontrol/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupCredentialRoutes sets up credential and user-setting routes
func SetupCredentialRoutes(r *gin.Engine) {
	creds := r.Group("/credentials")
	creds.Use(middleware.UserAuth())
	{
		creds.GET("", handlers.ListExchangeCredentials)
		creds.POST("", handlers.CreateExchangeCredential)
		creds.DELETE("/:id", handlers.DeleteExchangeCredential)
	}

	settings := r.Group("/settings")
	settings.Use(middleware.UserAuth())
	{
		settings.GET("", handlers.GetUserSettings)
		settings.POST("/emergency-stop", handlers.SetEmergencyStop)
	}
}
