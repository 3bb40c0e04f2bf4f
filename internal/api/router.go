package api

import (
	"Hephaestus/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes wires all orchestrator routes onto the gin engine. limiter
// may be nil to disable rate limiting.
func RegisterRoutes(router *gin.Engine, a *API, limiter ratelimiter.RateLimiter) {
	v1 := router.Group("/api/v1")
	if limiter != nil {
		v1.Use(RateLimit(limiter))
	}

	tasks := v1.Group("/tasks")
	{
		tasks.POST("", a.StartTaskHandler)
		tasks.GET("/:id", a.GetTaskHandler)
		tasks.POST("/:id/events", a.PostEventHandler)
	}
	v1.GET("/agents", a.ListAgentsHandler)

	router.GET("/ws/tasks/:id", a.WatchTaskHandler)
}
