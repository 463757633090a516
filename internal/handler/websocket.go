package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"campus_live/internal/config"
	"campus_live/internal/gateway"
	"campus_live/internal/service"
	"campus_live/pkg/logger"
)

type WebSocketHandler struct {
	authService service.AuthService
	coordinator *gateway.Coordinator
	upgrader    websocket.Upgrader
	log         logger.Logger
}

func NewWebSocketHandler(authService service.AuthService, coordinator *gateway.Coordinator, cfg *config.Config, log logger.Logger) *WebSocketHandler {
	checkOrigin := func(r *http.Request) bool { return true }
	if cfg.Environment == "production" {
		checkOrigin = func(r *http.Request) bool {
			return r.Header.Get("Origin") != ""
		}
	}

	return &WebSocketHandler{
		authService: authService,
		coordinator: coordinator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		log: log,
	}
}

// Connect аутентифицирует по query-токену (браузерный WebSocket не умеет
// выставлять заголовки) и передаёт соединение координатору.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
		return
	}

	identity, err := h.authService.VerifyToken(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	// Блокируется до разрыва соединения
	h.coordinator.HandleConnection(ws, *identity)
}
