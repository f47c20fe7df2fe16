// internal/socket/handler.go
package socket

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Authenticate resolves a bearer token to the operator's user ID.
type Authenticate func(token string) (string, error)

// Handler handles WebSocket connections
type Handler struct {
	Hub          *Hub
	authenticate Authenticate
	upgrader     websocket.Upgrader
}

// NewHandler creates a new WebSocket handler. allowedOrigins empty accepts
// any origin.
func NewHandler(hub *Hub, authenticate Authenticate, allowedOrigins []string) *Handler {
	return &Handler{
		Hub:          hub,
		authenticate: authenticate,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		for _, o := range allowed {
			if o == origin {
				return true
			}
		}
		return false
	}
}

// HandleWebSocket upgrades the request. Browsers cannot set headers on a
// WebSocket, so the token may also come from the query string.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "No token provided"})
		return
	}

	userID, err := h.authenticate(tokenString)
	if err != nil {
		h.Hub.log.Debug("websocket token rejected", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Hub.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(h.Hub, userID, conn)
	if !h.Hub.Register(client) {
		conn.Close()
		return
	}
	h.Hub.JoinRoom(client, "user:"+userID)
	if orgID := c.Query("organizationId"); orgID != "" {
		h.Hub.JoinRoom(client, OrganizationRoom(orgID))
	}

	go client.WritePump()
	go client.ReadPump()
}
