package api

import (
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	api := router.Group("/api")
	{
		api.GET("/health", handler.Health)
		api.POST("/valuations", handler.EstimateValuation)
		api.GET("/cache/stats", handler.GetCacheStats)
		api.DELETE("/cache", handler.ClearCache)
		api.GET("/rate-limit", handler.GetRateLimit)
		api.POST("/runs", handler.TriggerRun)
		api.GET("/runs/last", handler.GetLastRun)
	}
}
