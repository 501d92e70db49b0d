package ws

import (
	"log"
	"net/http"
	"strings"

	"collabEngine/backend/internal/collab"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// upgrader allows local development origins; some clients send no
// Origin header at all, or the literal string "null".
var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" {
		return true
	}
	allowedPrefixes := []string{
		"http://localhost",
		"http://127.0.0.1",
		"https://localhost",
		"https://127.0.0.1",
	}
	for _, p := range allowedPrefixes {
		if strings.HasPrefix(origin, p) {
			return true
		}
	}
	return false
}}

type Manager struct {
	hub      *Hub
	registry *collab.Registry
	gate     collab.PermissionGate
	sem      *collab.SemaphoreControl
}

func NewManager(hub *Hub, registry *collab.Registry, gate collab.PermissionGate, sem *collab.SemaphoreControl) *Manager {
	return &Manager{hub: hub, registry: registry, gate: gate, sem: sem}
}

// WebSocketConnect upgrades the request and runs the connection loops.
// Identity comes from the auth middleware via the gin context.
func (m *Manager) WebSocketConnect(c *gin.Context) {
	userID := c.GetUint64("userId")
	username := c.GetString("username")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v (origin=%s)", err, c.Request.Header.Get("Origin"))
		return
	}
	defer conn.Close()

	wsConn := NewConn(conn, m.hub, userID, username, m.registry, m.gate, m.sem)

	// start the write loop before anything is enqueued
	go wsConn.writeLoop()
	wsConn.enqueue(ServerMessage{Type: "welcome", UserID: userID, Username: username})

	// blocks until the connection drops
	wsConn.readLoop(c.Request.Context())
}
