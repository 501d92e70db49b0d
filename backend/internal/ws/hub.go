package ws

import (
	"sync"

	"collabEngine/backend/internal/cache"
	"collabEngine/backend/internal/collab"
)

// Hub tracks which connections sit in which project and file rooms.
// Rooms hold connections rather than user ids because broadcasts are
// delivered per connection. Shared presence lives in the cache; the
// hub is purely this instance's fan-out table.
type Hub struct {
	presence cache.PresenceCache

	mu           sync.RWMutex
	projectRooms map[string]map[*Conn]struct{}
	fileRooms    map[collab.DocKey]map[*Conn]struct{}
}

func NewHub(p cache.PresenceCache) *Hub {
	return &Hub{
		presence:     p,
		projectRooms: make(map[string]map[*Conn]struct{}),
		fileRooms:    make(map[collab.DocKey]map[*Conn]struct{}),
	}
}

func (h *Hub) JoinProject(projectID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.projectRooms[projectID] == nil {
		h.projectRooms[projectID] = make(map[*Conn]struct{})
	}
	h.projectRooms[projectID][c] = struct{}{}
}

func (h *Hub) LeaveProject(projectID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.projectRooms[projectID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.projectRooms, projectID)
		}
	}
}

func (h *Hub) JoinFile(key collab.DocKey, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fileRooms[key] == nil {
		h.fileRooms[key] = make(map[*Conn]struct{})
	}
	h.fileRooms[key][c] = struct{}{}
}

func (h *Hub) LeaveFile(key collab.DocKey, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.fileRooms[key]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.fileRooms, key)
		}
	}
}

// BroadcastProject sends to every project-room member except the
// sender; broadcasts never echo back.
func (h *Hub) BroadcastProject(projectID string, except *Conn, msg OutboundMessage) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.projectRooms[projectID]))
	for c := range h.projectRooms[projectID] {
		if c != except {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.enqueue(msg)
	}
}

// BroadcastFile sends to every file-room member except the sender.
func (h *Hub) BroadcastFile(key collab.DocKey, except *Conn, msg OutboundMessage) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.fileRooms[key]))
	for c := range h.fileRooms[key] {
		if c != except {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.enqueue(msg)
	}
}
