package routes

import (
	"github.com/gin-gonic/gin"

	"taskboard/internal/controller"
	"taskboard/internal/middleware"
)

func Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())

	// Readiness for load balancers and K8s probes
	router.GET("/ready", controller.Ready)

	api := router.Group("/api")
	{
		api.GET("/health", controller.Health)
		api.GET("/tasks", controller.ListTasks)
		api.POST("/tasks", controller.CreateTask)
		api.PUT("/tasks/:id", controller.UpdateTask)
		api.DELETE("/tasks/:id", controller.DeleteTask)
		api.GET("/analytics", controller.Analytics)
	}

	return router
}
