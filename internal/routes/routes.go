package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"matchly_backend/internal/middleware"
	"matchly_backend/ws"
)

// RegisterRoutes регистрирует маршруты ядра: health и websocket-эндпоинт.
// REST-слой платформы живет в отдельном сервисе.
func RegisterRoutes(r *gin.Engine, wsHandler *ws.WebSocketHandler) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// WebSocket endpoint (только авторизованные пользователи)
	wsGroup := r.Group("/ws")
	wsGroup.Use(middleware.AuthMiddleware())
	{
		wsGroup.GET("/connect", wsHandler.ServeWS)
	}
}
