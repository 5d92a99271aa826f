package routes

import (
	"daohub_backend/internal/auth"
	"daohub_backend/internal/handlers"
	"daohub_backend/internal/logger"
	"daohub_backend/internal/metrics"
	"daohub_backend/internal/middleware"
	"daohub_backend/ws"

	"github.com/gin-gonic/gin"
)

// Guards are the middleware chains shared by route groups.
type Guards struct {
	Auth      gin.HandlerFunc
	RateLimit gin.HandlerFunc
}

// RegisterRoutes регистрирует все HTTP и WebSocket маршруты.
func RegisterRoutes(
	ginRouter *gin.Engine,
	appHandlers *handlers.AppHandlers,
	wsHandler *ws.WebSocketHandler,
	guards Guards,
) {
	appHandlers.HealthHandler.RegisterRoutes(ginRouter)
	ginRouter.GET("/metrics", metrics.Handler())

	user := []gin.HandlerFunc{guards.Auth}
	if guards.RateLimit != nil {
		user = append(user, guards.RateLimit)
	}

	// Регистрация HTTP API v1
	api := ginRouter.Group("/api/v1")
	{
		appHandlers.NotificationHandler.RegisterRoutes(api, user...)
		appHandlers.NotificationHandler.RegisterAdminRoutes(api, guards.Auth, middleware.RequirePermission(auth.PermNotificationsSend))
		appHandlers.QueueHandler.RegisterRoutes(api, guards.Auth, middleware.RequirePermission(auth.PermQueuesManage))
	}

	// Регистрация WebSocket
	wsGroup := ginRouter.Group("/ws")
	wsGroup.Use(user...)
	{
		wsGroup.GET("", wsHandler.ServeWS)
	}
	logger.Info("WebSocket route /ws registered")
}
