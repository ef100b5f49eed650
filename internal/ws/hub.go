package ws

import (
	"encoding/json"
	"log"
	"sync"

	"social-chat-service/internal/models"
)

// Hub tracks live connections per user. A user may hold several sessions at
// once; every event addressed to the user reaches all of them.
type Hub struct {
	mu       sync.RWMutex
	sessions map[int]map[*Conn]ConnInfo
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		sessions: make(map[int]map[*Conn]ConnInfo),
	}
}

// Add registers a connection under the user.
func (h *Hub) Add(userID int, conn *Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[userID]; !ok {
		h.sessions[userID] = make(map[*Conn]ConnInfo)
	}
	h.sessions[userID][conn] = info
}

// Remove unregisters a connection.
func (h *Hub) Remove(userID int, conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.sessions[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.sessions, userID)
		}
	}
}

// Sessions reports the number of live connections for the user.
func (h *Hub) Sessions(userID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID])
}

// SendToUsers delivers the event to every session of every listed user.
// Users without a live session are skipped; they catch up from history.
func (h *Hub) SendToUsers(userIDs []int, ev models.ServerEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("event marshal error: %v", err)
		return
	}
	h.mu.RLock()
	conns := make([]*Conn, 0, len(userIDs))
	for _, id := range userIDs {
		for conn := range h.sessions[id] {
			conns = append(conns, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		conn.enqueue(payload)
	}
}

// SendToUsersExcept is SendToUsers minus one user, used for typing signals
// which never echo back to the actor.
func (h *Hub) SendToUsersExcept(userIDs []int, except int, ev models.ServerEvent) {
	filtered := make([]int, 0, len(userIDs))
	for _, id := range userIDs {
		if id != except {
			filtered = append(filtered, id)
		}
	}
	h.SendToUsers(filtered, ev)
}

// SendToAll delivers the event to every connected session.
func (h *Hub) SendToAll(ev models.ServerEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("event marshal error: %v", err)
		return
	}
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.sessions))
	for _, sessions := range h.sessions {
		for conn := range sessions {
			conns = append(conns, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		conn.enqueue(payload)
	}
}
