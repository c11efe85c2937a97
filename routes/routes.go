package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/place-matcher/app/controllers"
)

// SetupOpsRoutes wires the in-flight monitoring endpoints.
func SetupOpsRoutes(router *gin.Engine, ops *controllers.OpsController) {
	router.GET("/healthz", ops.Health)
	router.GET("/progress", ops.Progress)
	router.GET("/stats/cache", ops.CacheStats)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{
			"error":  "route not found",
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		})
	})
}
