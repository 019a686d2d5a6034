package ws

import (
	"context"
	"log"
	"sync"
	"time"

	"messenger/internal/models"
	"messenger/internal/observability"
)

// Hub maintains active websocket rooms. Every connection sits in its user's
// private room; chat rooms hold the connections of members currently joined.
type Hub struct {
	userRooms map[int64]map[*Conn]bool
	chatRooms map[string]map[*Conn]bool
	joined    map[*Conn]map[string]bool
	mu        sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		userRooms: make(map[int64]map[*Conn]bool),
		chatRooms: make(map[string]map[*Conn]bool),
		joined:    make(map[*Conn]map[string]bool),
	}
}

// Register adds a connection to its user's room and reports how many
// connections that user now has. A count of one means the user just came online.
func (h *Hub) Register(conn *Conn) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	userID := conn.UserID()
	if _, ok := h.userRooms[userID]; !ok {
		h.userRooms[userID] = make(map[*Conn]bool)
	}
	h.userRooms[userID][conn] = true
	h.joined[conn] = make(map[string]bool)
	return len(h.userRooms[userID])
}

// Unregister removes a connection from every room and reports how many
// connections its user still has. Zero means the user went offline.
func (h *Hub) Unregister(conn *Conn) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	userID := conn.UserID()
	remaining := 0
	if conns, ok := h.userRooms[userID]; ok {
		delete(conns, conn)
		remaining = len(conns)
		if remaining == 0 {
			delete(h.userRooms, userID)
		}
	}
	for chatID := range h.joined[conn] {
		h.removeFromChatLocked(chatID, conn)
	}
	delete(h.joined, conn)
	return remaining
}

// JoinChat adds a connection to a chat room.
func (h *Hub) JoinChat(chatID string, conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.chatRooms[chatID]; !ok {
		h.chatRooms[chatID] = make(map[*Conn]bool)
	}
	h.chatRooms[chatID][conn] = true
	if _, ok := h.joined[conn]; ok {
		h.joined[conn][chatID] = true
	}
}

// LeaveChat removes a connection from a chat room.
func (h *Hub) LeaveChat(chatID string, conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromChatLocked(chatID, conn)
	if chats, ok := h.joined[conn]; ok {
		delete(chats, chatID)
	}
}

func (h *Hub) removeFromChatLocked(chatID string, conn *Conn) {
	if conns, ok := h.chatRooms[chatID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.chatRooms, chatID)
		}
	}
}

// BroadcastToChat sends an event to every connection joined to a chat.
func (h *Hub) BroadcastToChat(chatID string, event models.Event) {
	h.writeAll(h.chatConns(chatID, nil), event)
}

// BroadcastToChatExcept sends an event to a chat room, skipping one connection.
// Typing indicators use this so the typist never echoes to themselves.
func (h *Hub) BroadcastToChatExcept(chatID string, except *Conn, event models.Event) {
	h.writeAll(h.chatConns(chatID, except), event)
}

// SendToUser sends an event to every connection of one user.
func (h *Hub) SendToUser(userID int64, event models.Event) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.userRooms[userID]))
	for conn := range h.userRooms[userID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()
	h.writeAll(conns, event)
}

// BroadcastAll sends an event to every live connection. Presence changes use it.
func (h *Hub) BroadcastAll(event models.Event) {
	h.mu.RLock()
	var conns []*Conn
	for _, room := range h.userRooms {
		for conn := range room {
			conns = append(conns, conn)
		}
	}
	h.mu.RUnlock()
	h.writeAll(conns, event)
}

// UserConnCount reports how many live connections a user has.
func (h *Hub) UserConnCount(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userRooms[userID])
}

func (h *Hub) chatConns(chatID string, except *Conn) []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := make([]*Conn, 0, len(h.chatRooms[chatID]))
	for conn := range h.chatRooms[chatID] {
		if conn == except {
			continue
		}
		conns = append(conns, conn)
	}
	return conns
}

func (h *Hub) writeAll(conns []*Conn, event models.Event) {
	for _, conn := range conns {
		if err := conn.WriteEvent(event); err != nil {
			log.Printf("websocket write error: %v", err)
			conn.Close()
			h.Unregister(conn)
			h.publishWSError(conn, err)
		}
	}
}

func (h *Hub) publishWSError(conn *Conn, err error) {
	info := conn.Info()
	_ = observability.PublishGatewayEvent(context.Background(),
		gatewayEvent(info, "ws_error", time.Since(info.ConnectedAt).Milliseconds(), err.Error()),
		observability.TraceHeaders(info.RequestID, info.TraceID))
	observability.IncWSEvent("ws_error")
}
