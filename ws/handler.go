package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"matchly_backend/internal/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // продакшн: проверка origin
	},
}

// WebSocketHandler - точка входа транспорта: апгрейд после внешней
// аутентификации и регистрация соединения в реестре.
type WebSocketHandler struct {
	registry *Registry
	// accepting - гейт координатора: апгрейды принимаются только
	// после старта планировщиков и до начала shutdown
	accepting  func() bool
	maxPerUser int
	opts       ClientOptions
}

func NewWebSocketHandler(registry *Registry, accepting func() bool, maxPerUser int, opts ClientOptions) *WebSocketHandler {
	return &WebSocketHandler{
		registry:   registry,
		accepting:  accepting,
		maxPerUser: maxPerUser,
		opts:       opts,
	}
}

// ServeWS - gin-обработчик /ws/connect. userID кладет auth middleware.
func (h *WebSocketHandler) ServeWS(c *gin.Context) {
	if h.accepting != nil && !h.accepting() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Server is not accepting connections"})
		return
	}

	userIDVal, exists := c.Get("userID")
	userID, _ := userIDVal.(string)
	if !exists || userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	// Лимит соединений - политика уровня эндпоинта, не реестра
	if h.maxPerUser > 0 && h.registry.CountFor(userID) >= h.maxPerUser {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many connections for this user"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade error", "user_id", userID, "error", err)
		return
	}

	client := NewClient(conn, userID, h.registry, h.opts)
	h.registry.Register(client)
	client.Run()
}
