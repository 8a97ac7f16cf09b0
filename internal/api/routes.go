package api

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes sets up the API routes
func SetupRoutes(handler *Handler) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(Recovery())
	router.Use(CORS())
	router.Use(gin.Logger())

	// Health check
	router.GET("/health", handler.HealthCheck)

	// API v1
	v1 := router.Group("/api/v1")
	{
		sources := v1.Group("/sources/:owner/:repo")
		{
			sources.GET("/report", handler.GetReport)
			sources.GET("/summary", handler.GetSummary)
			sources.GET("/trends", handler.GetTrends)
			sources.GET("/classifications", handler.GetClassifications)
			sources.GET("/runs", handler.GetRuns)
		}
	}

	return router
}
